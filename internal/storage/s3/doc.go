/*
Package s3 provides an AWS S3 storage adapter for webvfs records, with optional
CargoShip optimized uploads.

# Object Layout

Every node record is one CBOR object. The key is the configured prefix, the
letter "n" and the node's absolute path:

	webvfs/n/                     root directory
	webvfs/n/home                 directory /home
	webvfs/n/home/user/notes.txt  file /home/user/notes.txt

Children of a directory are the keys one level below "<prefix>n<dir>/", so the
adapter answers GetChildren with a single delimited ListObjectsV2 call per
page and needs no separate parent index. GetAll lists the whole prefix.

# CargoShip Integration

When EnableCargoShipOptimization is set, puts go through a CargoShip
transporter first and fall back to a plain PutObject if it fails:

	cfg := s3.NewDefaultConfig()
	cfg.Bucket = "my-bucket"
	cfg.EnableCargoShipOptimization = true

	backend, err := s3.Open(ctx, cfg, logger)

# Storage Tiers

New objects are written with the storage class selected by StorageTier:
STANDARD, STANDARD_IA, ONEZONE_IA or INTELLIGENT_TIERING.

# Errors

Missing keys are reported as NOT_FOUND so callers can tell an absent node from
a failing backend. Other failures become STORAGE_READ or STORAGE_WRITE errors
carrying the SDK error as their cause; wrap the adapter with
storage.NewResilient to retry them behind a circuit breaker.

# Testing

The adapter depends only on the API interface, which *s3.Client satisfies.
Tests drive it through an in-memory implementation.
*/
package s3
