package config

type MinioConfig struct {
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_key"`
	Endpoint   string `yaml:"endpoint"`
	UseSSL     bool   `yaml:"use_ssl"`
	Region     string `yaml:"region"`
	BucketName string `yaml:"bucket"`
}

func (c *MinioConfig) applyEnv() {
	envString("MINIO_ACCESS_KEY", &c.AccessKey)
	envString("MINIO_SECRET_KEY", &c.SecretKey)
	envString("MINIO_ENDPOINT", &c.Endpoint)
	envBool("MINIO_USE_SSL", &c.UseSSL)
	envString("MINIO_REGION", &c.Region)
	envString("MINIO_BUCKET_NAME", &c.BucketName)
}
