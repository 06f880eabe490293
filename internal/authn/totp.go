package authn

import (
	"github.com/pquerna/otp/totp"
)

// GenerateMFASecret creates a new base32 TOTP secret for a user enrolling
// in MFA. SHA1/6 digits/30s period match every authenticator app and the
// validation side in ValidateOTP.
func GenerateMFASecret(accountName, issuer string) (secret string, otpauthURL string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: accountName,
	})
	if err != nil {
		return "", "", err
	}
	return key.Secret(), key.URL(), nil
}

// ValidateOTP checks a 6-digit TOTP code against the stored secret,
// allowing the default one-step clock skew.
func ValidateOTP(secret, code string) bool {
	return totp.Validate(code, secret)
}
