package config

type GCSConfig struct {
	BucketName      string `yaml:"bucket"`
	CredentialsFile string `yaml:"credentials_file"`
}

func (c *GCSConfig) applyEnv() {
	envString("GCS_BUCKET_NAME", &c.BucketName)
	envString("GOOGLE_APPLICATION_CREDENTIALS", &c.CredentialsFile)
}
