package externalidentity

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/tendant/edu-idm/pkg/idgovua"
)

const MessageTicketIncomplete = "External login information could not be resolved. Please try again."

// UserInfoFetcher resolves the verified identity behind an external user id
type UserInfoFetcher interface {
	GetUserInfo(ctx context.Context, remoteUserID, backchannelToken string) idgovua.Result[idgovua.VerifiedIdentity]
}

// Bridge turns an external ticket into a verified identity
type Bridge struct {
	fetcher UserInfoFetcher
}

func NewBridge(fetcher UserInfoFetcher) *Bridge {
	return &Bridge{fetcher: fetcher}
}

// Resolve never returns a Go error; an incomplete ticket is a recoverable, typed failure
func (b *Bridge) Resolve(ctx context.Context, ticket *Ticket) idgovua.Result[idgovua.VerifiedIdentity] {
	if ticket == nil {
		return incomplete("no external ticket")
	}
	if ticket.UserID == "" {
		slog.Warn("External ticket has no user id", "scheme", ticket.Scheme)
		return incomplete("ticket has no external user id")
	}
	token, ok := ticket.BackchannelToken()
	if !ok {
		slog.Warn("External ticket has no backchannel token", "scheme", ticket.Scheme, "user_id", ticket.UserID)
		return incomplete(fmt.Sprintf("ticket has no %s property", BackchannelTokenKey(ticket.Scheme)))
	}

	return b.fetcher.GetUserInfo(ctx, ticket.UserID, token)
}

func incomplete(reason string) idgovua.Result[idgovua.VerifiedIdentity] {
	return idgovua.Fail[idgovua.VerifiedIdentity](
		idgovua.UnknownError(http.StatusBadRequest, MessageTicketIncomplete, fmt.Errorf("%s", reason)))
}
