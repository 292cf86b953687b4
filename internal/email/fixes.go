package email

import (
	"slices"
)

// FixMissingUIDs infers UIDs a server collapsed after a multi-message operation.
// When fewer than expected new UIDs arrive, the missing ones are assumed to be the
// integers immediately below the lowest UID present. This holds only for servers
// that assign UIDs consecutively.
func FixMissingUIDs(expected int, uids []uint32) []uint32 {
	if len(uids) == 0 || len(uids) >= expected {
		return uids
	}

	fixed := slices.Clone(uids)
	lowest := slices.Min(uids)
	for i := uint32(1); len(fixed) < expected && i < lowest; i++ {
		fixed = append(fixed, lowest-i)
	}
	slices.Sort(fixed)
	return fixed
}

// FixEmailUIDs maps each UID in a fetch response to the requested UID it answers.
// When every requested UID came back, each maps to itself. When some are missing the
// counts must match: UIDs present on both sides are kept and the rest are paired in
// ascending order. A short or long response with missing UIDs cannot be reconciled.
func FixEmailUIDs(requested, returned []uint32) (map[uint32]uint32, error) {
	got := toSet(returned)
	var missing []uint32
	for _, uid := range requested {
		if _, ok := got[uid]; !ok {
			missing = append(missing, uid)
		}
	}

	wanted := toSet(requested)
	fixes := make(map[uint32]uint32, len(returned))
	var unmatched []uint32
	for _, uid := range returned {
		if _, ok := wanted[uid]; ok {
			fixes[uid] = uid
		} else {
			unmatched = append(unmatched, uid)
		}
	}
	if len(missing) == 0 {
		return fixes, nil
	}

	if len(requested) != len(returned) || len(missing) != len(unmatched) {
		return nil, &UIDMismatchError{Requested: requested, Returned: returned}
	}

	slices.Sort(missing)
	slices.Sort(unmatched)
	for i, uid := range unmatched {
		fixes[uid] = missing[i]
	}
	return fixes, nil
}
