package config

// SecretStringValue is what is shown instead of the secret.
const SecretStringValue = "<secret>"

// SecretString is used for values which should not be visible in logs and
// configuration dumps, such as cookies for sites requiring login.
type SecretString string

// String implements fmt.Stringer so secret could be logged safely.
func (s SecretString) String() string {
	if len(s) == 0 {
		return ""
	}
	return SecretStringValue
}

// Reveal returns actual value.
func (s SecretString) Reveal() string {
	return string(s)
}

// MarshalYAML marshals SecretString to YAML making sure that actual value is not visible.
func (s SecretString) MarshalYAML() (any, error) {
	if len(s) == 0 {
		return nil, nil
	}
	return SecretStringValue, nil
}
