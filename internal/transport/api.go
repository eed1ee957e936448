package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"servicemarket/internal/domain"
)

// TransitionResult is the backend's answer to a status change. Changed is false
// when the order was already in the requested state and nothing happened.
type TransitionResult struct {
	Order   *domain.Order `json:"order"`
	Changed bool          `json:"changed"`
}

// LoginResult is returned by Login.
type LoginResult struct {
	domain.TokenPair
	User struct {
		ID   int64           `json:"id"`
		Name string          `json:"name"`
		Role domain.UserRole `json:"role"`
	} `json:"user"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type declineRequest struct {
	Reason string `json:"reason,omitempty"`
}

type postMessageRequest struct {
	Body     string `json:"body"`
	ClientID string `json:"client_id,omitempty"`
}

type createInvoiceRequest struct {
	OrderID int64   `json:"order_id"`
	Amount  float64 `json:"amount"`
}

type ordersPage struct {
	Orders []*domain.Order `json:"orders"`
}

type messagesPage struct {
	Messages []*domain.Message `json:"messages"`
}

type notificationsPage struct {
	Notifications []*domain.Notification `json:"notifications"`
}

func orderPath(id int64) string {
	return "/orders/" + strconv.FormatInt(id, 10)
}

// Login exchanges credentials for a token pair. It never carries a bearer.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	var out LoginResult
	if err := c.do(ctx, http.MethodPost, "/auth/login", loginRequest{Email: email, Password: password}, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

// RefreshTokens trades a refresh token for a new pair. It is the session manager's refresher
// and is sent without a bearer so it can never trigger another refresh.
func (c *Client) RefreshTokens(ctx context.Context, refreshToken string) (domain.TokenPair, error) {
	var out domain.TokenPair
	if err := c.do(ctx, http.MethodPost, "/auth/refresh", refreshRequest{RefreshToken: refreshToken}, &out, false); err != nil {
		return domain.TokenPair{}, err
	}
	return out, nil
}

func (c *Client) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	var out domain.Order
	if err := c.Do(ctx, http.MethodGet, orderPath(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListOrders(ctx context.Context) ([]*domain.Order, error) {
	var out ordersPage
	if err := c.Do(ctx, http.MethodGet, "/orders", nil, &out); err != nil {
		return nil, err
	}
	return out.Orders, nil
}

func (c *Client) CreateOrder(ctx context.Context, draft domain.OrderDraft) (*domain.Order, error) {
	var out domain.Order
	if err := c.Do(ctx, http.MethodPost, "/orders", draft, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TransitionOrder posts one of accept, decline, start or complete.
func (c *Client) TransitionOrder(ctx context.Context, id int64, action, reason string) (*TransitionResult, error) {
	switch action {
	case "accept", "decline", "start", "complete":
	default:
		return nil, fmt.Errorf("%w: unknown action %q", domain.ErrInvalidTransition, action)
	}

	var in any
	if action == "decline" {
		in = declineRequest{Reason: reason}
	}
	var out TransitionResult
	if err := c.Do(ctx, http.MethodPost, orderPath(id)+"/"+action, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CancelOrder(ctx context.Context, id int64) (*TransitionResult, error) {
	var out TransitionResult
	if err := c.Do(ctx, http.MethodDelete, orderPath(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListMessages(ctx context.Context, orderID int64) ([]*domain.Message, error) {
	var out messagesPage
	if err := c.Do(ctx, http.MethodGet, orderPath(orderID)+"/messages", nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// PostMessage is the fallback send path. clientID is echoed back so the caller can
// replace its provisional entry.
func (c *Client) PostMessage(ctx context.Context, orderID int64, body, clientID string) (*domain.Message, error) {
	var out domain.Message
	in := postMessageRequest{Body: body, ClientID: clientID}
	if err := c.Do(ctx, http.MethodPost, orderPath(orderID)+"/messages", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UnreadCounts(ctx context.Context) (domain.UnreadCounts, error) {
	var out domain.UnreadCounts
	if err := c.Do(ctx, http.MethodGet, "/notifications/unread-count", nil, &out); err != nil {
		return domain.UnreadCounts{}, err
	}
	return out, nil
}

func (c *Client) ListNotifications(ctx context.Context, limit int) ([]*domain.Notification, error) {
	path := "/notifications"
	if limit > 0 {
		path += "?" + url.Values{"limit": {strconv.Itoa(limit)}}.Encode()
	}
	var out notificationsPage
	if err := c.Do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Notifications, nil
}

func (c *Client) MarkNotificationRead(ctx context.Context, id int64) error {
	return c.Do(ctx, http.MethodPost, "/notifications/"+strconv.FormatInt(id, 10)+"/mark-read", nil, nil)
}

func (c *Client) MarkAllNotificationsRead(ctx context.Context) error {
	return c.Do(ctx, http.MethodPost, "/notifications/mark-all-read", nil, nil)
}

func (c *Client) CreateInvoice(ctx context.Context, orderID int64, amount float64) (*domain.Invoice, error) {
	var out domain.Invoice
	if err := c.Do(ctx, http.MethodPost, "/invoices", createInvoiceRequest{OrderID: orderID, Amount: amount}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
