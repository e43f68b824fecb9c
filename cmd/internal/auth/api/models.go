package authapi

import (
	"time"

	"linkup/cmd/internal/auth/session"
	"linkup/cmd/internal/presence"
)

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type tokenPairResponse struct {
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

type accessTokenResponse struct {
	AccessToken     string    `json:"accessToken"`
	AccessExpiresAt time.Time `json:"accessExpiresAt"`
}

type userResponse struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Username  string `json:"username"`
}

type meResponse struct {
	User userResponse `json:"user"`
}

type deleteResponse struct {
	ID        string    `json:"id"`
	DeletedAt time.Time `json:"deletedAt"`
}

type onlineResponse struct {
	ID     string `json:"id"`
	Online bool   `json:"online"`
}

type presenceResponse struct {
	Users []userResponse `json:"users"`
}

func toTokenPairResponse(p session.TokenPair) tokenPairResponse {
	return tokenPairResponse{
		AccessToken:      p.AccessToken,
		AccessExpiresAt:  p.AccessExpiresAt,
		RefreshToken:     p.RefreshToken,
		RefreshExpiresAt: p.RefreshExpiresAt,
	}
}

func toUserResponse(a session.Account) userResponse {
	return userResponse{
		ID:        a.ID,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Username:  a.Username,
	}
}

func toPresenceResponse(entries []presence.Entry) presenceResponse {
	out := presenceResponse{Users: make([]userResponse, 0, len(entries))}
	for _, e := range entries {
		out.Users = append(out.Users, toUserResponse(session.Account{ID: e.ID, Profile: e.Profile}))
	}
	return out
}
