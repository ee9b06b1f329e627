package transfer

import (
	"context"
	"strings"

	"github.com/google/uuid"

	types "github.com/yungbote/dcengine/internal/domain"
	"github.com/yungbote/dcengine/internal/domain/access"
	"github.com/yungbote/dcengine/internal/domain/faults"
	dtransfer "github.com/yungbote/dcengine/internal/domain/transfer"
	"github.com/yungbote/dcengine/internal/engine/command"
	"github.com/yungbote/dcengine/internal/engine/permissions"
	"github.com/yungbote/dcengine/internal/engine/ticket"
	"github.com/yungbote/dcengine/internal/platform/dbctx"
)

// SessionParams address an existing transfer session.
type SessionParams struct {
	SessionID uuid.UUID `json:"session_id"`
	ImageID   uuid.UUID `json:"image_id"`
}

type FinalizeParams struct {
	SessionID uuid.UUID `json:"session_id"`
	ImageID   uuid.UUID `json:"image_id"`
	Succeeded bool      `json:"succeeded"`
	Reason    string    `json:"reason,omitempty"`
}

// sessionSubjects lets the uploader (CREATE_DISK on the disk's domain) and
// disk operators act on a session.
func sessionSubjects(imageID uuid.UUID) permissions.Requirement {
	return permissions.AnyOf(
		permissions.Subject{ObjectID: imageID, ObjectType: access.ObjectDisk, ActionGroup: access.ActionGroupCreateDisk},
		permissions.Subject{ObjectID: imageID, ObjectType: access.ObjectDisk, ActionGroup: access.ActionGroupConfigureDiskStorage},
	)
}

func (h *Handler) validateSession(dbc dbctx.Context, v *command.Validation, sessionID, imageID uuid.UUID) *types.TransferSession {
	sess, err := h.deps.Sessions.GetByID(dbc, sessionID)
	if err != nil {
		v.Fault(err)
		return nil
	}
	if !v.Check(sess != nil && sess.ImageID == imageID, ReasonSessionNotFound, "transfer session not found for image") {
		return nil
	}
	return sess
}

// ExtendImageTransfer renews a session's ticket.
type ExtendImageTransfer struct {
	h      *Handler
	params SessionParams
	ec     command.ExecContext
}

var _ command.Targeter = (*ExtendImageTransfer)(nil)

func (c *ExtendImageTransfer) Type() command.ActionType { return ActionExtendImageTransfer }

func (c *ExtendImageTransfer) PermissionSubjects() permissions.Requirement {
	return sessionSubjects(c.params.ImageID)
}

func (c *ExtendImageTransfer) AuditEvents() command.AuditEvents {
	return command.AuditEvents{Success: EventRenewed, Failure: EventRenewalFailed}
}

func (c *ExtendImageTransfer) AuditTarget() string { return c.params.SessionID.String() }

func (c *ExtendImageTransfer) Validate(dbc dbctx.Context, v *command.Validation) {
	sess := c.h.validateSession(dbc, v, c.params.SessionID, c.params.ImageID)
	if sess == nil {
		return
	}
	// An expired session goes through so the renewal reports SessionExpired.
	v.Check(sess.Status != dtransfer.SessionClosed, ReasonSessionEnded, "transfer session already finalized")
}

func (c *ExtendImageTransfer) Execute(ctx context.Context) (any, error) {
	const op = "transfer.extend"
	d := c.h.deps
	tk, err := d.Tracker.Renew(ctx, c.params.SessionID)
	if err != nil {
		if faults.IsCode(err, faults.CodeSessionExpired) {
			c.h.dropTicket(ctx, c.params.SessionID)
		}
		return nil, err
	}
	if err := d.Agent.ExtendTicket(ctx, tk.Session.ID.String(), c.h.lifetime()); err != nil {
		return nil, faults.New(faults.CodeUnavailable, op, "extend ticket on host agent", err)
	}
	return sessionResult(tk, imageURL(tk.Session.StorageDomainID, tk.Session.ImageID)), nil
}

// FinalizeImageTransfer ends a session. A successful upload commits its
// quota reservation and unlocks the new disk; any other ending releases the
// reservation, and a failed upload leaves the disk ILLEGAL. A session is
// finalized at most once.
type FinalizeImageTransfer struct {
	h      *Handler
	params FinalizeParams
	ec     command.ExecContext
}

var _ command.Targeter = (*FinalizeImageTransfer)(nil)

func (c *FinalizeImageTransfer) Type() command.ActionType { return ActionFinalizeImageTransfer }

func (c *FinalizeImageTransfer) PermissionSubjects() permissions.Requirement {
	return sessionSubjects(c.params.ImageID)
}

func (c *FinalizeImageTransfer) AuditEvents() command.AuditEvents {
	return command.AuditEvents{Success: EventSucceeded, Failure: EventFailed}
}

func (c *FinalizeImageTransfer) AuditTarget() string { return c.params.SessionID.String() }

func (c *FinalizeImageTransfer) Validate(dbc dbctx.Context, v *command.Validation) {
	sess := c.h.validateSession(dbc, v, c.params.SessionID, c.params.ImageID)
	if sess == nil {
		return
	}
	v.Check(sess.Status != dtransfer.SessionClosed, ReasonSessionEnded, "transfer session already finalized")
}

func (c *FinalizeImageTransfer) Execute(ctx context.Context) (any, error) {
	const op = "transfer.finalize"
	d := c.h.deps
	reason := strings.TrimSpace(c.params.Reason)
	if reason == "" {
		reason = "finalized"
	}
	closed, err := d.Tracker.Close(ctx, c.params.SessionID, ticket.CloseInput{Succeeded: c.params.Succeeded, Reason: reason})
	if err != nil {
		return nil, err
	}
	c.h.dropTicket(ctx, c.params.SessionID)

	sess, err := d.Tracker.Get(ctx, c.params.SessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, faults.New(faults.CodeNotFound, op, "transfer session not found", nil)
	}
	// The sweeper or a refused renewal expired it first; the image was
	// released then.
	if sess.Status == dtransfer.SessionExpired {
		return nil, faults.New(faults.CodeSessionExpired, op, "transfer session expired before finalization", nil)
	}
	if !closed {
		// Another finalize won; its outcome stands.
		return nil, command.Reject(command.Reason{Code: ReasonSessionEnded, Message: "transfer session already finalized"})
	}
	if !c.params.Succeeded {
		return nil, faults.New(faults.CodePreconditionFailed, op, "transfer reported failure", nil)
	}
	return &Session{
		SessionID: sess.ID,
		ImageID:   sess.ImageID,
		Direction: string(sess.Direction),
		Status:    string(sess.Status),
		ExpiresAt: sess.ExpiresAt,
		Renewals:  sess.Renewals,
	}, nil
}
