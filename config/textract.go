package config

// TextractConfig configures the AWS Textract OCR engine. Credentials fall
// back to the S3 section's when left empty.
type TextractConfig struct {
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

func (c *TextractConfig) applyEnv() {
	envString("AWS_REGION", &c.Region)
	envString("TEXTRACT_ENDPOINT", &c.Endpoint)
	envString("AWS_ACCESS_KEY", &c.AccessKey)
	envString("AWS_SECRET_KEY", &c.SecretKey)
}
