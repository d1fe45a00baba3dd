package config

// StorageConfig selects and configures the object store for recordings.
type StorageConfig struct {
	Type           string // minio or memory
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	// PublicURL overrides the base used for playback references, e.g. a CDN.
	PublicURL string
}
