/*
Package config provides configuration management for webvfs with multi-source
support.

Values are resolved in three layers, each overriding the one before:

	┌─────────────────────────────────────────────┐
	│        Environment Variables                │ ← Highest Priority
	│           (WEBVFS_*)                        │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│         Configuration File                  │
	│            (YAML format)                    │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│           Default Values                    │ ← Lowest Priority
	│        (NewDefault)                         │
	└─────────────────────────────────────────────┘

# Configuration Structure

	filesystem:
	  sync_interval: 5s
	  max_nodes: 10000
	  max_file_size: 10MB
	  max_total_size: 100MB
	  default_file_permissions: rw-r--r--
	  default_dir_permissions: rwxr-xr-x
	  reserved_dirs: [/home, /home/user, /tmp, /etc, /var, /usr, /bin]
	  home_dir: /home/user

	storage:
	  backend: bolt            # memory, bolt or s3
	  bolt:
	    path: /var/lib/webvfs/webvfs.db
	  s3:
	    bucket: my-bucket
	    prefix: webvfs/
	    region: us-east-1
	  backup:
	    enabled: true
	    directory: /var/lib/webvfs/backup
	  resilience: true
	  retry:
	    max_attempts: 3
	  circuit_breaker:
	    failure_threshold: 5

	logging:
	  level: INFO
	  format: json

	metrics:
	  enabled: true
	  namespace: webvfs
	  address: ":9090"

	health:
	  error_threshold: 3
	  unavailable_threshold: 10
	  recovery_threshold: 2

	api:
	  enabled: false
	  address: localhost:8080
	  max_body_size: 16777216
	  enable_cors: true

Sizes accept human-readable strings such as "512KB" or "10MB".

# Environment Variables

Every field can be overridden through kelseyhightower/envconfig, with the
section names joined by underscores:

	WEBVFS_FS_MAX_NODES=50000
	WEBVFS_FS_RESERVED_DIRS=/home,/tmp
	WEBVFS_STORAGE_BACKEND=s3
	WEBVFS_STORAGE_S3_BUCKET=my-bucket
	WEBVFS_STORAGE_RETRY_MAX_ATTEMPTS=5
	WEBVFS_LOG_LEVEL=DEBUG
	WEBVFS_HEALTH_ERROR_THRESHOLD=5
	WEBVFS_API_ENABLED=true

# Usage

	cfg, err := config.Load("/etc/webvfs/config.yaml")
	if err != nil {
		log.Fatal(err)
	}

Validation errors carry the INVALID_CONFIG code.
*/
package config
