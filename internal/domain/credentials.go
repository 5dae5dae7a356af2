package domain

// Credentials carries the exchange API key pair. The secret is only ever
// handed to a signer; String and GoString keep it out of logs and %v/%#v output.
type Credentials struct {
	APIKey string
	Secret string
}

// NewCredentials validates that both halves of the key pair are present.
func NewCredentials(apiKey, secret string) (Credentials, error) {
	switch {
	case apiKey == "":
		return Credentials{}, &AuthConfigError{Key: "BYBIT_API_KEY"}
	case secret == "":
		return Credentials{}, &AuthConfigError{Key: "BYBIT_SECRET_KEY"}
	}
	return Credentials{APIKey: apiKey, Secret: secret}, nil
}

func (c Credentials) String() string {
	return "Credentials{APIKey: " + c.APIKey + ", Secret: [REDACTED]}"
}

func (c Credentials) GoString() string {
	return c.String()
}
