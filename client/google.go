package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/rs/zerolog/log"
)

const personFields = "names,emailAddresses"

// Person is the subset of a People API person that gauth displays.
type Person struct {
	ResourceName string `json:"resourceName"`
	Names        []struct {
		DisplayName string `json:"displayName"`
	} `json:"names"`
	EmailAddresses []struct {
		Value string `json:"value"`
	} `json:"emailAddresses"`
}

// DisplayName returns the first name on record, or "".
func (p Person) DisplayName() string {
	if len(p.Names) == 0 {
		return ""
	}
	return p.Names[0].DisplayName
}

// Email returns the first email address on record, or "".
func (p Person) Email() string {
	if len(p.EmailAddresses) == 0 {
		return ""
	}
	return p.EmailAddresses[0].Value
}

// Me fetches the signed-in user's profile.
func (c *Client) Me(ctx context.Context) (*Person, error) {
	var p Person
	q := url.Values{"personFields": {personFields}}
	if err := c.getJSON(ctx, c.peopleURL, "/v1/people/me", q, &p); err != nil {
		return nil, fmt.Errorf("failed to fetch profile: %w", err)
	}
	return &p, nil
}

// Connections lists the user's contacts, following page tokens. limit <= 0 means no limit.
func (c *Client) Connections(ctx context.Context, limit int) ([]Person, error) {
	var people []Person
	pageToken := ""
	for {
		q := url.Values{
			"personFields": {personFields},
			"pageSize":     {strconv.Itoa(100)},
		}
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}
		var page struct {
			Connections   []Person `json:"connections"`
			NextPageToken string   `json:"nextPageToken"`
		}
		if err := c.getJSON(ctx, c.peopleURL, "/v1/people/me/connections", q, &page); err != nil {
			return nil, fmt.Errorf("failed to list connections: %w", err)
		}
		people = append(people, page.Connections...)
		log.Debug().Int("page", len(page.Connections)).Int("total", len(people)).Msg("Fetched connections page")
		if limit > 0 && len(people) >= limit {
			return people[:limit], nil
		}
		if page.NextPageToken == "" || page.NextPageToken == pageToken {
			return people, nil
		}
		pageToken = page.NextPageToken
	}
}

// Translation is one translated input.
type Translation struct {
	TranslatedText         string `json:"translatedText"`
	DetectedSourceLanguage string `json:"detectedSourceLanguage"`
}

// Translate translates text into the target language code.
func (c *Client) Translate(ctx context.Context, text, target string) (*Translation, error) {
	if target == "" {
		return nil, fmt.Errorf("target language is required")
	}
	in := map[string]interface{}{
		"q":      []string{text},
		"target": target,
		"format": "text",
	}
	var out struct {
		Data struct {
			Translations []Translation `json:"translations"`
		} `json:"data"`
	}
	if err := c.postJSON(ctx, c.translateURL, "/language/translate/v2", in, &out); err != nil {
		return nil, fmt.Errorf("failed to translate: %w", err)
	}
	if len(out.Data.Translations) == 0 {
		return nil, fmt.Errorf("translation response is empty")
	}
	return &out.Data.Translations[0], nil
}
