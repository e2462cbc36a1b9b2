package platform

import (
	"encoding/json"
	"fmt"

	"github.com/postpilot/link-server-go/internal/model"
)

// ProfileExtractor maps one platform's profile response shape to the
// uniform remote id / display name pair the handshake stores.
type ProfileExtractor interface {
	Extract(raw []byte) (*model.RemoteProfile, error)
}

// ExtractorFor returns the extractor for a platform name, or nil when
// the platform is unknown.
func ExtractorFor(name string) ProfileExtractor {
	if ep, ok := platformEndpoints[name]; ok {
		return ep.extractor
	}
	return nil
}

type instagramExtractor struct{}

func (instagramExtractor) Extract(raw []byte) (*model.RemoteProfile, error) {
	var payload struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("parse instagram profile: %w", err)
	}
	if payload.ID == "" {
		return nil, fmt.Errorf("instagram profile missing id")
	}
	return &model.RemoteProfile{
		RemoteID:    payload.ID,
		DisplayName: payload.Username,
		Raw:         json.RawMessage(raw),
	}, nil
}

type facebookExtractor struct{}

func (facebookExtractor) Extract(raw []byte) (*model.RemoteProfile, error) {
	var payload struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("parse facebook profile: %w", err)
	}
	if payload.ID == "" {
		return nil, fmt.Errorf("facebook profile missing id")
	}
	return &model.RemoteProfile{
		RemoteID:    payload.ID,
		DisplayName: payload.Name,
		Raw:         json.RawMessage(raw),
	}, nil
}

type linkedInExtractor struct{}

func (linkedInExtractor) Extract(raw []byte) (*model.RemoteProfile, error) {
	// OIDC userinfo shape
	var payload struct {
		Sub  string `json:"sub"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("parse linkedin profile: %w", err)
	}
	if payload.Sub == "" {
		return nil, fmt.Errorf("linkedin profile missing sub")
	}
	return &model.RemoteProfile{
		RemoteID:    payload.Sub,
		DisplayName: payload.Name,
		Raw:         json.RawMessage(raw),
	}, nil
}

type twitterExtractor struct{}

func (twitterExtractor) Extract(raw []byte) (*model.RemoteProfile, error) {
	var payload struct {
		Data struct {
			ID       string `json:"id"`
			Name     string `json:"name"`
			Username string `json:"username"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("parse twitter profile: %w", err)
	}
	if payload.Data.ID == "" {
		return nil, fmt.Errorf("twitter profile missing id")
	}
	name := payload.Data.Username
	if name == "" {
		name = payload.Data.Name
	}
	return &model.RemoteProfile{
		RemoteID:    payload.Data.ID,
		DisplayName: name,
		Raw:         json.RawMessage(raw),
	}, nil
}

type youtubeExtractor struct{}

func (youtubeExtractor) Extract(raw []byte) (*model.RemoteProfile, error) {
	var payload struct {
		Items []struct {
			ID      string `json:"id"`
			Snippet struct {
				Title string `json:"title"`
			} `json:"snippet"`
		} `json:"items"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("parse youtube channel list: %w", err)
	}
	if len(payload.Items) == 0 || payload.Items[0].ID == "" {
		return nil, fmt.Errorf("youtube response has no channel")
	}
	return &model.RemoteProfile{
		RemoteID:    payload.Items[0].ID,
		DisplayName: payload.Items[0].Snippet.Title,
		Raw:         json.RawMessage(raw),
	}, nil
}
