package social

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/chirino/memory-journal/internal/config"
	registrystore "github.com/chirino/memory-journal/internal/registry/store"
	"golang.org/x/oauth2"
)

// VK endpoints.
const (
	VKAuthURL  = "https://oauth.vk.com/authorize"
	VKTokenURL = "https://oauth.vk.com/access_token"
	VKAPIURL   = "https://api.vk.com/method"
)

// vkProfileFields are requested from users.get and stored as extra data.
const vkProfileFields = "photo_big,photo_medium,screen_name"

// VK signs users in with VK OAuth and reads the profile through users.get.
type VK struct {
	oauth      *oauth2.Config
	apiURL     string
	apiVersion string
}

// NewVK builds a VK connector from cfg.
func NewVK(cfg *config.Config) *VK {
	return NewVKWithEndpoints(cfg, oauth2.Endpoint{
		AuthURL:   VKAuthURL,
		TokenURL:  VKTokenURL,
		AuthStyle: oauth2.AuthStyleInParams,
	}, VKAPIURL)
}

// NewVKWithEndpoints builds a VK connector talking to the given endpoints.
func NewVKWithEndpoints(cfg *config.Config, endpoint oauth2.Endpoint, apiURL string) *VK {
	return &VK{
		oauth: &oauth2.Config{
			ClientID:     cfg.VKClientID,
			ClientSecret: cfg.VKClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  CallbackURL(cfg, ProviderVK),
			Scopes:       []string{"email"},
		},
		apiURL:     apiURL,
		apiVersion: cfg.VKAPIVersion,
	}
}

func (v *VK) Provider() Provider { return ProviderVK }

func (v *VK) AuthCodeURL(state string) string {
	return v.oauth.AuthCodeURL(state)
}

type vkResponse struct {
	Response []map[string]interface{} `json:"response"`
	Error    *struct {
		Code    int    `json:"error_code"`
		Message string `json:"error_msg"`
	} `json:"error"`
}

func (v *VK) Exchange(ctx context.Context, code string) (*registrystore.SocialLogin, error) {
	token, err := v.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, errors.Join(errExchange, err)
	}
	uid := vkUserID(token.Extra("user_id"))
	if uid == "" {
		return nil, errors.Join(errExchange, errors.New("token response has no user_id"))
	}
	email, _ := token.Extra("email").(string)

	q := url.Values{}
	q.Set("user_ids", uid)
	q.Set("fields", vkProfileFields)
	q.Set("access_token", token.AccessToken)
	q.Set("v", v.apiVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.apiURL+"/users.get?"+q.Encode(), nil)
	if err != nil {
		return nil, errors.Join(errProfileLookup, err)
	}
	resp, err := v.oauth.Client(ctx, token).Do(req)
	if err != nil {
		return nil, errors.Join(errProfileLookup, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Join(errProfileLookup, fmt.Errorf("users.get returned status %d", resp.StatusCode))
	}

	var body vkResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errors.Join(errProfileLookup, err)
	}
	if body.Error != nil {
		return nil, errors.Join(errProfileLookup, fmt.Errorf("users.get error %d: %s", body.Error.Code, body.Error.Message))
	}
	if len(body.Response) == 0 {
		return nil, errors.Join(errProfileLookup, errors.New("users.get returned no profile"))
	}

	return &registrystore.SocialLogin{
		Provider:  string(ProviderVK),
		UID:       uid,
		Email:     email,
		ExtraData: body.Response[0],
	}, nil
}

// vkUserID normalizes the user_id token field, which VK sends as a number.
func vkUserID(raw interface{}) string {
	switch v := raw.(type) {
	case float64:
		if v <= 0 {
			return ""
		}
		return strconv.FormatInt(int64(v), 10)
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return ""
	}
}
