// Package transfer holds the image transfer commands: initiating an upload
// or download session, renewing its ticket, and finalizing it.
package transfer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/dcengine/internal/clients/imageio"
	clusterrepo "github.com/yungbote/dcengine/internal/data/repos/cluster"
	transferrepo "github.com/yungbote/dcengine/internal/data/repos/transfer"
	"github.com/yungbote/dcengine/internal/data/store"
	"github.com/yungbote/dcengine/internal/engine/command"
	"github.com/yungbote/dcengine/internal/engine/configstore"
	"github.com/yungbote/dcengine/internal/engine/quota"
	"github.com/yungbote/dcengine/internal/engine/ticket"
	"github.com/yungbote/dcengine/internal/engine/versioning"
	"github.com/yungbote/dcengine/internal/platform/logger"
)

const (
	ActionTransferDiskImage     command.ActionType = "TransferDiskImage"
	ActionExtendImageTransfer   command.ActionType = "ExtendImageTransfer"
	ActionFinalizeImageTransfer command.ActionType = "FinalizeImageTransfer"
)

const (
	EventInitiated      = "TRANSFER_IMAGE_INITIATED"
	EventInitiateFailed = "TRANSFER_IMAGE_INITIATE_FAILED"
	EventRenewed        = "TRANSFER_IMAGE_TICKET_RENEWED"
	EventRenewalFailed  = "TRANSFER_IMAGE_TICKET_RENEWAL_FAILED"
	EventSucceeded      = "TRANSFER_IMAGE_SUCCEEDED"
	EventFailed         = "TRANSFER_IMAGE_FAILED"
)

// Rejection codes.
const (
	ReasonInvalidTransferType  = "ACTION_TYPE_FAILED_INVALID_TRANSFER_TYPE"
	ReasonInvalidTransferSize  = "ACTION_TYPE_FAILED_INVALID_TRANSFER_SIZE"
	ReasonDomainNotExist       = "ACTION_TYPE_FAILED_STORAGE_DOMAIN_NOT_EXIST"
	ReasonDomainStatusIllegal  = "ACTION_TYPE_FAILED_STORAGE_DOMAIN_STATUS_ILLEGAL"
	ReasonDomainSpaceLow       = "ACTION_TYPE_FAILED_DISK_SPACE_LOW_ON_STORAGE_DOMAIN"
	ReasonDiskAliasRequired    = "ACTION_TYPE_FAILED_DISK_ALIAS_MAY_NOT_BE_EMPTY"
	ReasonDiskNotExist         = "ACTION_TYPE_FAILED_DISK_NOT_EXIST"
	ReasonDiskStatusIllegal    = "ACTION_TYPE_FAILED_DISK_IS_NOT_IN_OK_STATUS"
	ReasonTransferNotSupported = "ACTION_TYPE_FAILED_IMAGE_TRANSFER_NOT_SUPPORTED"
	ReasonSessionNotFound      = "ACTION_TYPE_FAILED_IMAGE_TRANSFER_SESSION_NOT_FOUND"
	ReasonSessionEnded         = "ACTION_TYPE_FAILED_IMAGE_TRANSFER_SESSION_ENDED"
)

type Deps struct {
	Log      *logger.Logger
	Runner   store.TxRunner
	Hooks    store.Hooks
	Pools    clusterrepo.StoragePoolRepo
	Domains  clusterrepo.StorageDomainRepo
	Images   clusterrepo.DiskImageRepo
	Sessions transferrepo.SessionRepo
	Ledger   *quota.Ledger
	Tracker  *ticket.Tracker
	Agent    imageio.Agent
	Config   configstore.Reader
	Versions *versioning.Oracle
}

type Handler struct {
	deps   Deps
	writer store.Writer
	log    *logger.Logger
}

func NewHandler(deps Deps) *Handler {
	if deps.Agent == nil {
		deps.Agent = imageio.Noop{}
	}
	return &Handler{
		deps:   deps,
		writer: store.Writer{Runner: deps.Runner, Hooks: deps.Hooks},
		log:    deps.Log.With("component", "TransferCommands"),
	}
}

// Register adds all transfer actions to reg.
func Register(reg *command.Registry, h *Handler) error {
	if err := command.Register(reg, command.Definition{Type: ActionTransferDiskImage, FailureEvent: EventInitiateFailed},
		func(p Params, ec command.ExecContext) command.Command {
			return &TransferDiskImage{h: h, params: p.normalized(), ec: ec}
		}); err != nil {
		return err
	}
	if err := command.Register(reg, command.Definition{Type: ActionExtendImageTransfer, FailureEvent: EventRenewalFailed},
		func(p SessionParams, ec command.ExecContext) command.Command {
			return &ExtendImageTransfer{h: h, params: p, ec: ec}
		}); err != nil {
		return err
	}
	return command.Register(reg, command.Definition{Type: ActionFinalizeImageTransfer, FailureEvent: EventFailed},
		func(p FinalizeParams, ec command.ExecContext) command.Command {
			return &FinalizeImageTransfer{h: h, params: p, ec: ec}
		})
}

// Session is what transfer commands return to the caller.
type Session struct {
	SessionID   uuid.UUID `json:"session_id"`
	ImageID     uuid.UUID `json:"image_id"`
	Direction   string    `json:"direction"`
	Status      string    `json:"status"`
	Token       string    `json:"token,omitempty"`
	TransferURL string    `json:"transfer_url,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
	Renewals    int       `json:"renewals"`
}

func sessionResult(t ticket.Ticket, url string) *Session {
	s := t.Session
	return &Session{
		SessionID:   s.ID,
		ImageID:     s.ImageID,
		Direction:   string(s.Direction),
		Status:      string(s.Status),
		Token:       t.Token,
		TransferURL: url,
		ExpiresAt:   s.ExpiresAt,
		Renewals:    s.Renewals,
	}
}

func (h *Handler) lifetime() time.Duration {
	if d := h.deps.Config.Duration(configstore.TransferTicketLifetime); d > 0 {
		return d
	}
	return 5 * time.Minute
}

func imageURL(domainID, imageID uuid.UUID) string {
	return fmt.Sprintf("file:///rhev/data-center/mnt/%s/images/%s", domainID, imageID)
}

// dropTicket asks the agent to forget a session; failures only log since the
// agent ticket times out on its own.
func (h *Handler) dropTicket(ctx context.Context, sessionID uuid.UUID) {
	if err := h.deps.Agent.RemoveTicket(ctx, sessionID.String()); err != nil {
		h.log.Warn("remove agent ticket failed", "session_id", sessionID, "error", err)
	}
}
