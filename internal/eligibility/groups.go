package eligibility

import "sort"

// ResolveSubmitters returns the canonical, id-sorted submitter set: the selected group's
// members when a group is selected, otherwise the requester alone.
func ResolveSubmitters(requester uint, group []uint) []uint {
	if len(group) == 0 {
		return []uint{requester}
	}
	return canonical(group)
}

// DetectGroupChange reports whether the latest prior submission was made with a
// different set of submitters than the ones currently resolved.
func DetectGroupChange(requester uint, group []uint, latestSubmitters []uint) bool {
	if len(latestSubmitters) == 0 {
		return false
	}
	return !sameSet(ResolveSubmitters(requester, group), latestSubmitters)
}

// DetectCrossGroupSubmission reports whether some other member of the selected group has
// already submitted while the requester has not, which would split the group.
func DetectCrossGroupSubmission(requester uint, group []uint, membersWithSubmissions []uint) bool {
	if len(group) == 0 {
		return false
	}

	inGroup := make(map[uint]struct{}, len(group))
	for _, id := range group {
		inGroup[id] = struct{}{}
	}
	for _, id := range membersWithSubmissions {
		if id == requester {
			continue
		}
		if _, ok := inGroup[id]; ok {
			return true
		}
	}
	return false
}

func canonical(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sameSet(a, b []uint) bool {
	left := canonical(a)
	right := canonical(b)
	if len(left) != len(right) {
		return false
	}
	for i := range left {
		if left[i] != right[i] {
			return false
		}
	}
	return true
}
