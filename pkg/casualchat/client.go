// Copyright 2024-2026 Aiku AI

// Package casualchat is a client for the extchat endpoints CasualChat adds
// to the Mattermost REST API.
package casualchat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/rs/zerolog"

	"github.com/aiku/mattermost-extchat/pkg/extchat"
)

// ErrNoChannel is returned when no channel is linked to an external id.
var ErrNoChannel = errors.New("no channel linked to external id")

// Client implements extchat.IdentityResolver and extchat.PostCreator.
type Client struct {
	api *model.Client4
	log zerolog.Logger
}

var (
	_ extchat.IdentityResolver = (*Client)(nil)
	_ extchat.PostCreator      = (*Client)(nil)
)

// NewClient creates a client for serverURL authenticated with token.
func NewClient(serverURL, token string, log zerolog.Logger) *Client {
	api := model.NewAPIv4Client(serverURL)
	api.SetToken(token)
	return &Client{
		api: api,
		log: log.With().Str("component", "casualchat").Logger(),
	}
}

// Verify checks the token by fetching the authenticated user.
func (c *Client) Verify(ctx context.Context) (*model.User, error) {
	me, _, err := c.api.GetMe(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to verify CasualChat session: %w", err)
	}
	c.log.Info().Str("user_id", me.Id).Str("username", me.Username).Msg("Authenticated")
	return me, nil
}

func platformRoute(platform, endpoint string, query url.Values) string {
	route := "/extchat/" + url.PathEscape(platform) + "/" + endpoint
	if len(query) > 0 {
		route += "?" + query.Encode()
	}
	return route
}

func (c *Client) getJSON(ctx context.Context, route string, out any) error {
	resp, err := c.api.DoAPIGet(ctx, route, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// ChannelForExternalID returns the channel linked to externalID on platform.
func (c *Client) ChannelForExternalID(ctx context.Context, platform, externalID string) (string, error) {
	var out struct {
		ChannelID string `json:"channelId"`
	}
	route := platformRoute(platform, "channel", url.Values{"externalId": {externalID}})
	if err := c.getJSON(ctx, route, &out); err != nil {
		return "", fmt.Errorf("failed to get channel for %s/%s: %w", platform, externalID, err)
	}
	if out.ChannelID == "" {
		return "", fmt.Errorf("%w: %s/%s", ErrNoChannel, platform, externalID)
	}
	return out.ChannelID, nil
}

// RefForChannel returns the external link of channelID, or nil when the
// channel is not linked to any platform.
func (c *Client) RefForChannel(ctx context.Context, channelID string) (*extchat.ExternalRef, error) {
	var ref extchat.ExternalRef
	route := platformRoute("any", "refByChannel", url.Values{"channelId": {channelID}})
	if err := c.getJSON(ctx, route, &ref); err != nil {
		return nil, fmt.Errorf("failed to get external ref for %s: %w", channelID, err)
	}
	if ref.ExternalPlatform == "" {
		return nil, nil
	}
	return &ref, nil
}

// CreatePost creates post through the extchat post endpoint, which lets the
// bridge author posts as aliased users.
func (c *Client) CreatePost(ctx context.Context, post *extchat.Post) error {
	mmPost := &model.Post{
		ChannelId:     post.ChannelID,
		UserId:        post.UserID,
		Message:       post.Message,
		PendingPostId: post.PendingPostID,
		CreateAt:      post.CreateAt,
		RootId:        post.RootID,
		FileIds:       model.StringArray(post.FileIDs),
	}
	mmPost.AddProp("mentionHighlightDisabled", post.MentionHighlightDisabled)
	mmPost.AddProp("disable_group_highlight", post.DisableGroupHighlight)

	data, err := json.Marshal(mmPost)
	if err != nil {
		return fmt.Errorf("failed to marshal post: %w", err)
	}
	resp, err := c.api.DoAPIPost(ctx, platformRoute("any", "post", nil), string(data))
	if err != nil {
		return fmt.Errorf("failed to create post: %w", err)
	}
	resp.Body.Close()
	return nil
}

// LinkAccount links the authenticated user to externalID on platform.
func (c *Client) LinkAccount(ctx context.Context, platform, externalID string) error {
	route := platformRoute(platform, "linkAccount", url.Values{"externalId": {externalID}})
	resp, err := c.api.DoAPIPost(ctx, route, "")
	if err != nil {
		return fmt.Errorf("failed to link %s account %s: %w", platform, externalID, err)
	}
	resp.Body.Close()
	return nil
}

// AliasUserID returns the internal user standing in for externalID.
func (c *Client) AliasUserID(ctx context.Context, platform, externalID, username string) (string, error) {
	var aliasID string
	route := platformRoute(platform, "aliasUserId", url.Values{
		"externalId": {externalID},
		"username":   {username},
	})
	if err := c.getJSON(ctx, route, &aliasID); err != nil {
		return "", fmt.Errorf("failed to get alias user for %s/%s: %w", platform, externalID, err)
	}
	return aliasID, nil
}
