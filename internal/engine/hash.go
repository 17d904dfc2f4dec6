package engine

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
)

// DefaultExcludedFields are stripped from every document before hashing or
// writing, regardless of operator configuration.
var DefaultExcludedFields = []string{
	"modified", "modified_by", "creation", "owner", "idx", "docstatus",
}

// CanonicalHash computes the stable content digest used for change detection.
// Fields named in excluded are removed, the remaining bag is serialized as
// JSON with lexicographically sorted keys, and the MD5 digest of that byte
// string is returned as lowercase hex. A nil document hashes to "".
func CanonicalHash(doc Document, excluded []string) string {
	if doc == nil {
		return ""
	}
	skip := make(map[string]struct{}, len(DefaultExcludedFields)+len(excluded))
	for _, f := range DefaultExcludedFields {
		skip[f] = struct{}{}
	}
	for _, f := range excluded {
		skip[f] = struct{}{}
	}

	bag := make(map[string]any, len(doc))
	for k, v := range doc {
		if _, excl := skip[k]; excl {
			continue
		}
		bag[k] = v
	}

	// encoding/json writes map keys in sorted order and adds no whitespace,
	// so marshalling the filtered bag yields the canonical form regardless
	// of map iteration order.
	buf, _ := json.Marshal(bag)

	sum := md5.Sum(buf)
	return hex.EncodeToString(sum[:])
}

// CleanForSync returns a copy of doc with the excluded fields (default set
// plus the caller's extras) and, when creating, the destination identity
// field removed so stale metadata from the source never taints the write.
func CleanForSync(doc Document, excluded []string, stripName bool) Document {
	skip := make(map[string]struct{}, len(DefaultExcludedFields)+len(excluded)+1)
	for _, f := range DefaultExcludedFields {
		skip[f] = struct{}{}
	}
	for _, f := range excluded {
		skip[f] = struct{}{}
	}
	if stripName {
		skip["name"] = struct{}{}
	}
	cleaned := make(Document, len(doc))
	for k, v := range doc {
		if _, excl := skip[k]; excl {
			continue
		}
		cleaned[k] = v
	}
	return cleaned
}
