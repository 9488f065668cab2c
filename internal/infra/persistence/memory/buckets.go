package memory

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Bucket names used by the durable stores, one row per bucket.
const (
	BucketFolders           = "folders"
	BucketAntibioticClasses = "antibiotic_classes"
	BucketAntibiotics       = "antibiotics"
	BucketLegacyAntibiotics = "legacy_antibiotics"
	BucketTypes             = "types"
	BucketRegistry          = "registry"
	BucketVersions          = "versions"
)

// Buckets lists every bucket in persistence order.
var Buckets = []string{
	BucketFolders,
	BucketAntibioticClasses,
	BucketAntibiotics,
	BucketLegacyAntibiotics,
	BucketTypes,
	BucketRegistry,
	BucketVersions,
}

func bucketTargets(s *Snapshot) map[string]any {
	return map[string]any{
		BucketFolders:           &s.Folders,
		BucketAntibioticClasses: &s.AntibioticClasses,
		BucketAntibiotics:       &s.Antibiotics,
		BucketLegacyAntibiotics: &s.LegacyAntibiotics,
		BucketTypes:             &s.Types,
		BucketRegistry:          &s.Registry,
		BucketVersions:          &s.Versions,
	}
}

// EncodeBuckets splits a snapshot into per-bucket JSON payloads.
func EncodeBuckets(snapshot Snapshot) (map[string][]byte, error) {
	targets := bucketTargets(&snapshot)
	out := make(map[string][]byte, len(Buckets))
	for _, bucket := range Buckets {
		data, err := json.Marshal(targets[bucket])
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", bucket, err)
		}
		out[bucket] = data
	}
	return out, nil
}

// DecodeBucket unmarshals one bucket payload into snapshot. Unknown buckets
// written by other releases are ignored.
func DecodeBucket(snapshot *Snapshot, bucket string, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	target, ok := bucketTargets(snapshot)[bucket]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("decode %s: %w", bucket, err)
	}
	return nil
}

// DirtyBuckets returns, in persistence order, the buckets whose encoded
// payload differs from the last written one.
func DirtyBuckets(written, next map[string][]byte) []string {
	var out []string
	for _, bucket := range Buckets {
		prev, ok := written[bucket]
		if !ok || !bytes.Equal(prev, next[bucket]) {
			out = append(out, bucket)
		}
	}
	return out
}
