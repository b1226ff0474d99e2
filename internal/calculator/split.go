// Package calculator turns a split policy and a group total into per-member
// obligations. All arithmetic is integer minor units.
package calculator

import (
	"errors"
	"fmt"
	"sort"

	"github.com/mmynk/groupcart/internal/models"
)

var (
	// ErrSplitMismatch means the resolved shares cannot sum to the total
	// (explicit amounts off, percentages not adding to 100).
	ErrSplitMismatch = errors.New("split does not sum to group total")

	// ErrInvalidSplit means the policy itself is malformed.
	ErrInvalidSplit = errors.New("invalid split policy")
)

// Resolve computes what each member owes.
//
// members must be in join order; that order decides who receives leftover
// units. The result has one obligation per member in the same order, and the
// obligations always sum to total exactly.
func Resolve(policy models.SplitPolicy, total int64, members []models.Member, ownerMemberID string) ([]models.Obligation, error) {
	if total < 0 {
		return nil, fmt.Errorf("%w: negative total %d", ErrInvalidSplit, total)
	}
	if len(members) == 0 {
		return nil, fmt.Errorf("%w: must have at least one member", ErrInvalidSplit)
	}

	switch policy.Type {
	case models.SplitTypeEqual, "":
		return equalSplit(total, members), nil
	case models.SplitTypeAmount:
		return amountSplit(policy.Entries, total, members)
	case models.SplitTypePercentage:
		return percentageSplit(policy.Entries, total, members)
	case models.SplitTypeUnified:
		return unifiedSplit(total, members, ownerMemberID)
	default:
		return nil, fmt.Errorf("%w: unknown split type %q", ErrInvalidSplit, policy.Type)
	}
}

// equalSplit gives everyone total/n and hands the remainder out one unit at
// a time starting with the earliest member.
func equalSplit(total int64, members []models.Member) []models.Obligation {
	n := int64(len(members))
	base := total / n
	remainder := total % n

	out := make([]models.Obligation, len(members))
	for i, m := range members {
		amount := base
		if int64(i) < remainder {
			amount++
		}
		out[i] = models.Obligation{MemberID: m.ID, Amount: amount}
	}
	return out
}

func amountSplit(entries []models.SplitEntry, total int64, members []models.Member) ([]models.Obligation, error) {
	byMember, err := indexEntries(entries, members)
	if err != nil {
		return nil, err
	}

	var sum int64
	out := make([]models.Obligation, len(members))
	for i, m := range members {
		e := byMember[m.ID]
		if e.Amount < 0 {
			return nil, fmt.Errorf("%w: negative amount for member %s", ErrInvalidSplit, m.ID)
		}
		out[i] = models.Obligation{MemberID: m.ID, Amount: e.Amount}
		sum += e.Amount
	}
	if sum != total {
		return nil, fmt.Errorf("%w: amounts sum to %d, total is %d", ErrSplitMismatch, sum, total)
	}
	return out, nil
}

// percentageSplit floors every share and distributes the residual by the
// largest-remainder method, ties broken by join order.
func percentageSplit(entries []models.SplitEntry, total int64, members []models.Member) ([]models.Obligation, error) {
	byMember, err := indexEntries(entries, members)
	if err != nil {
		return nil, err
	}

	var pctSum int64
	for _, m := range members {
		p := byMember[m.ID].Percent
		if p < 0 || p > 100 {
			return nil, fmt.Errorf("%w: percent %d out of range for member %s", ErrInvalidSplit, p, m.ID)
		}
		pctSum += p
	}
	if pctSum != 100 {
		return nil, fmt.Errorf("%w: percentages sum to %d, want 100", ErrSplitMismatch, pctSum)
	}

	out := make([]models.Obligation, len(members))
	remainders := make([]int64, len(members))
	var floored int64
	for i, m := range members {
		scaled := total * byMember[m.ID].Percent
		out[i] = models.Obligation{MemberID: m.ID, Amount: scaled / 100}
		remainders[i] = scaled % 100
		floored += out[i].Amount
	}

	order := make([]int, len(members))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return remainders[order[a]] > remainders[order[b]]
	})

	residual := total - floored
	for k := int64(0); k < residual; k++ {
		out[order[k]].Amount++
	}
	return out, nil
}

func unifiedSplit(total int64, members []models.Member, ownerMemberID string) ([]models.Obligation, error) {
	out := make([]models.Obligation, len(members))
	found := false
	for i, m := range members {
		out[i] = models.Obligation{MemberID: m.ID}
		if m.ID == ownerMemberID {
			out[i].Amount = total
			found = true
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: owner %s is not a member", ErrInvalidSplit, ownerMemberID)
	}
	return out, nil
}

// indexEntries maps entries by member id, rejecting duplicates and entries
// for people outside the group.
func indexEntries(entries []models.SplitEntry, members []models.Member) (map[string]models.SplitEntry, error) {
	known := make(map[string]bool, len(members))
	for _, m := range members {
		known[m.ID] = true
	}

	byMember := make(map[string]models.SplitEntry, len(entries))
	for _, e := range entries {
		if !known[e.MemberID] {
			return nil, fmt.Errorf("%w: member %s is not in the group", ErrInvalidSplit, e.MemberID)
		}
		if _, dup := byMember[e.MemberID]; dup {
			return nil, fmt.Errorf("%w: duplicate entry for member %s", ErrInvalidSplit, e.MemberID)
		}
		byMember[e.MemberID] = e
	}
	return byMember, nil
}

// Sum adds up obligations.
func Sum(obligations []models.Obligation) int64 {
	var sum int64
	for _, o := range obligations {
		sum += o.Amount
	}
	return sum
}
