package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fitgate/fitgate/internal/instrumentation"
	"github.com/fitgate/fitgate/internal/logging"
	"github.com/fitgate/fitgate/internal/provider"
	"github.com/fitgate/fitgate/internal/tools"
	"github.com/fitgate/fitgate/internal/vault"
)

const minPasswordLength = 8

func (d *Dispatcher) handleInitialize(req *Request) *Response {
	return resultResponse(req.ID, map[string]any{
		"server": map[string]string{
			"name":    d.cfg.ServerName,
			"version": d.cfg.ServerVersion,
		},
		"capabilities": map[string]any{
			"tools": d.cfg.Tools.List(),
		},
	})
}

// authenticate extracts and validates the bearer session token carried in
// the request params.
func (d *Dispatcher) authenticate(token string) (uuid.UUID, *Error) {
	if token == "" {
		return uuid.Nil, &Error{Code: CodeAuthError, Message: "missing session token"}
	}
	tenantID, err := d.cfg.Auth.ValidateToken(token)
	if err != nil {
		return uuid.Nil, rpcErrorFor(err)
	}
	return tenantID, nil
}

type toolsCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	Token     string         `json:"token"`
}

func (d *Dispatcher) handleToolsCall(ctx context.Context, logger *slog.Logger, req *Request) *Response {
	var params toolsCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, CodeInvalidParams, "invalid params")
	}
	if params.Name == "" {
		return errorResponse(req.ID, CodeInvalidParams, "missing tool name")
	}

	tenantID, rpcErr := d.authenticate(params.Token)
	if rpcErr != nil {
		return errorResponse(req.ID, rpcErr.Code, rpcErr.Message)
	}

	providerName, _ := params.Arguments["provider"].(string)
	if providerName == "" {
		return errorResponse(req.ID, CodeInvalidParams, "missing provider argument")
	}

	tool, ok := d.cfg.Tools.Get(params.Name)
	if !ok {
		return errorResponse(req.ID, CodeInvalidParams, "unknown tool: "+params.Name)
	}

	sess, err := d.cfg.Sessions.Get(tenantID, providerName)
	if err != nil {
		rpcErr := rpcErrorFor(err)
		return errorResponse(req.ID, rpcErr.Code, rpcErr.Message)
	}

	accessToken, err := sess.EnsureFresh(ctx)
	if err != nil {
		rpcErr := rpcErrorFor(err)
		return errorResponse(req.ID, rpcErr.Code, rpcErr.Message)
	}

	prov, err := d.cfg.Sessions.Provider(providerName)
	if err != nil {
		rpcErr := rpcErrorFor(err)
		return errorResponse(req.ID, rpcErr.Code, rpcErr.Message)
	}

	start := time.Now()
	result, err := tool.Handler(ctx, &tools.Call{
		TenantID:    tenantID,
		Provider:    prov,
		AccessToken: accessToken,
		Args:        params.Arguments,
	})
	elapsed := time.Since(start)

	if err != nil {
		d.cfg.Metrics.RecordToolInvocation(ctx, params.Name, instrumentation.StatusError, elapsed.Seconds())
		logger.Warn("tool failed",
			logging.Tool(params.Name),
			logging.Tenant(tenantID.String()),
			logging.Err(err))
		rpcErr := rpcErrorFor(err)
		return errorResponse(req.ID, rpcErr.Code, rpcErr.Message)
	}

	d.cfg.Metrics.RecordToolInvocation(ctx, params.Name, instrumentation.StatusSuccess, elapsed.Seconds())
	return resultResponse(req.ID, result)
}

type registerParams struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

func (d *Dispatcher) handleRegister(ctx context.Context, req *Request) *Response {
	var params registerParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, CodeInvalidParams, "invalid params")
	}
	if params.Email == "" {
		return errorResponse(req.ID, CodeInvalidParams, "missing email")
	}
	if len(params.Password) < minPasswordLength {
		return errorResponse(req.ID, CodeInvalidParams, "password must be at least 8 characters")
	}

	hash, err := vault.HashPassword(params.Password)
	if err != nil {
		return errorResponse(req.ID, CodeInternalError, "internal error")
	}

	userID, err := d.cfg.Vault.CreateUser(ctx, params.Email, hash, params.DisplayName)
	if err != nil {
		rpcErr := storageError(err)
		return errorResponse(req.ID, rpcErr.Code, rpcErr.Message)
	}

	return resultResponse(req.ID, map[string]any{"user_id": userID.String()})
}

type loginParams struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (d *Dispatcher) handleLogin(ctx context.Context, req *Request) *Response {
	var params loginParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, CodeInvalidParams, "invalid params")
	}

	user, err := d.cfg.Vault.GetUserByEmail(ctx, params.Email)
	if err != nil {
		// One message for unknown email and wrong password, so the login
		// endpoint cannot be used to probe registered addresses.
		return errorResponse(req.ID, CodeAuthError, "invalid credentials")
	}
	if !vault.CheckPassword(params.Password, user.PasswordHash) {
		return errorResponse(req.ID, CodeAuthError, "invalid credentials")
	}

	token, err := d.cfg.Auth.IssueToken(user.ID)
	if err != nil {
		return errorResponse(req.ID, CodeInternalError, "internal error")
	}

	return resultResponse(req.ID, map[string]any{
		"token":   token,
		"user_id": user.ID.String(),
	})
}

type authorizeURLParams struct {
	Token        string   `json:"token"`
	Provider     string   `json:"provider"`
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	RedirectURI  string   `json:"redirect_uri"`
	Scopes       []string `json:"scopes"`
	State        string   `json:"state"`
}

func (d *Dispatcher) handleAuthorizeURL(ctx context.Context, req *Request) *Response {
	var params authorizeURLParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, CodeInvalidParams, "invalid params")
	}

	tenantID, rpcErr := d.authenticate(params.Token)
	if rpcErr != nil {
		return errorResponse(req.ID, rpcErr.Code, rpcErr.Message)
	}

	if params.Provider == "" || params.ClientID == "" || params.ClientSecret == "" || params.RedirectURI == "" {
		return errorResponse(req.ID, CodeInvalidParams, "provider, client_id, client_secret and redirect_uri are required")
	}

	sess, err := d.cfg.Sessions.Get(tenantID, params.Provider)
	if err != nil {
		rpcErr := rpcErrorFor(err)
		return errorResponse(req.ID, rpcErr.Code, rpcErr.Message)
	}

	state := params.State
	if state == "" {
		state = uuid.NewString()
	}

	app := provider.OAuthApp{
		ClientID:     params.ClientID,
		ClientSecret: params.ClientSecret,
		Scopes:       params.Scopes,
	}
	url := sess.AuthorizeURL(app, params.RedirectURI, state)

	return resultResponse(req.ID, map[string]any{
		"url":   url,
		"state": state,
	})
}

type exchangeParams struct {
	Token    string `json:"token"`
	Provider string `json:"provider"`
	State    string `json:"state"`
	Code     string `json:"code"`
}

func (d *Dispatcher) handleExchange(ctx context.Context, req *Request) *Response {
	var params exchangeParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, CodeInvalidParams, "invalid params")
	}

	tenantID, rpcErr := d.authenticate(params.Token)
	if rpcErr != nil {
		return errorResponse(req.ID, rpcErr.Code, rpcErr.Message)
	}
	if params.Provider == "" || params.Code == "" {
		return errorResponse(req.ID, CodeInvalidParams, "provider and code are required")
	}

	sess, err := d.cfg.Sessions.Get(tenantID, params.Provider)
	if err != nil {
		rpcErr := rpcErrorFor(err)
		return errorResponse(req.ID, rpcErr.Code, rpcErr.Message)
	}

	if err := sess.ExchangeCode(ctx, params.State, params.Code); err != nil {
		rpcErr := rpcErrorFor(err)
		return errorResponse(req.ID, rpcErr.Code, rpcErr.Message)
	}

	return resultResponse(req.ID, map[string]any{
		"linked":   true,
		"provider": params.Provider,
	})
}
