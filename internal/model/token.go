package model

import "time"

const TokenTypeRefresh = "refresh"

// RefreshTokenRecord is one ledger row per issued refresh token.
type RefreshTokenRecord struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	Token      string    `json:"-"`
	Type       string    `json:"type"`
	ExpiresAt  time.Time `json:"expiresAt"`
	Revoked    bool      `json:"revoked"`
	ReplacedBy string    `json:"replacedBy,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Active reports whether the record can still be exchanged at now.
func (r RefreshTokenRecord) Active(now time.Time) bool {
	return !r.Revoked && now.Before(r.ExpiresAt)
}

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int64  `json:"expiresIn"`
}

type AuthResult struct {
	User   User      `json:"user"`
	Tokens TokenPair `json:"tokens"`
}

type RefreshResult struct {
	Tokens TokenPair `json:"tokens"`
}
