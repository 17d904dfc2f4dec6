package engine

// ResolveDirection is the pure decision function of the direction resolver.
// cloud and local are nil when the document is absent on that side. record
// may be the zero value when the key has never been observed. hint, when
// non-empty, is only honored if it agrees with what the decision table
// already computed — a webhook can never override the table.
func ResolveDirection(cloud, local Document, record SyncRecord, excluded []string, hint Direction) Direction {
	switch {
	case cloud == nil && local == nil:
		return DirectionSkip
	case cloud != nil && local == nil:
		return DirectionCloudToLocal
	case cloud == nil && local != nil:
		return DirectionLocalToCloud
	}

	hCloud := CanonicalHash(cloud, excluded)
	hLocal := CanonicalHash(local, excluded)

	cloudChanged := hCloud != record.CloudHash
	localChanged := hLocal != record.LocalHash

	var decision Direction
	switch {
	case !cloudChanged && !localChanged:
		decision = DirectionNone
	case cloudChanged && !localChanged:
		decision = DirectionCloudToLocal
	case !cloudChanged && localChanged:
		decision = DirectionLocalToCloud
	default:
		decision = DirectionConflict
	}

	if hint != "" && hint == decision {
		return hint
	}
	return decision
}
