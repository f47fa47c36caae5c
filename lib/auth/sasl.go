package auth

import (
	"context"
	"fmt"

	"github.com/emersion/go-sasl"

	"git.sr.ht/~rjarry/mailbackend/models"
)

// Mechanism returns the SASL mechanism name matching an authentication
// type, or "" when no SASL exchange takes place.
func Mechanism(a models.AuthType) string {
	switch a {
	case models.AuthPlain:
		return sasl.Plain
	case models.AuthLogin:
		return sasl.Login
	case models.AuthOAuthBearer:
		return sasl.OAuthBearer
	case models.AuthXOAuth2:
		return Xoauth2
	}
	return ""
}

// NewSaslClient builds the SASL client for the credentials in s. OAuth
// types exchange the refresh token stored as password when the settings
// carry a token_endpoint parameter. A nil client means no authentication.
func NewSaslClient(
	ctx context.Context, s models.ServerSettings, acct string,
) (sasl.Client, error) {
	var saslClient sasl.Client

	switch s.Auth {
	case models.AuthNone:
		saslClient = nil
	case models.AuthLogin:
		saslClient = sasl.NewLoginClient(s.Username, s.Password)
	case models.AuthPlain:
		saslClient = sasl.NewPlainClient("", s.Username, s.Password)
	case models.AuthOAuthBearer, models.AuthXOAuth2:
		token, err := AccessToken(ctx, s, acct)
		if err != nil {
			return nil, err
		}
		if s.Auth == models.AuthXOAuth2 {
			saslClient = NewXoauth2Client(s.Username, token)
		} else {
			saslClient = sasl.NewOAuthBearerClient(
				&sasl.OAuthBearerOptions{
					Username: s.Username,
					Token:    token,
				},
			)
		}
	default:
		return nil, fmt.Errorf("Unsupported auth mechanism %q", s.Auth)
	}
	return saslClient, nil
}
