package transfer

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/dcengine/internal/clients/imageio"
	types "github.com/yungbote/dcengine/internal/domain"
	"github.com/yungbote/dcengine/internal/domain/access"
	dcluster "github.com/yungbote/dcengine/internal/domain/cluster"
	"github.com/yungbote/dcengine/internal/domain/faults"
	dtransfer "github.com/yungbote/dcengine/internal/domain/transfer"
	"github.com/yungbote/dcengine/internal/engine/command"
	"github.com/yungbote/dcengine/internal/engine/configstore"
	"github.com/yungbote/dcengine/internal/engine/permissions"
	"github.com/yungbote/dcengine/internal/engine/quota"
	"github.com/yungbote/dcengine/internal/engine/ticket"
	"github.com/yungbote/dcengine/internal/platform/dbctx"
)

// AddDiskParams describe the disk an upload creates.
type AddDiskParams struct {
	Alias       string `json:"alias"`
	Description string `json:"description,omitempty"`
	SizeBytes   int64  `json:"size_bytes"`
	Format      string `json:"format,omitempty"`
}

type Params struct {
	StorageDomainID uuid.UUID           `json:"storage_domain_id"`
	ImageID         uuid.UUID           `json:"image_id,omitempty"`
	TransferType    dtransfer.Direction `json:"transfer_type"`
	TransferSize    int64               `json:"transfer_size"`
	AddDisk         *AddDiskParams      `json:"add_disk,omitempty"`

	// Session tracking. Filled in while the command runs.
	SessionExpiration time.Time `json:"session_expiration,omitempty"`
	RetryExtendTicket bool      `json:"retry_extend_ticket"`
	LastPauseLogTime  time.Time `json:"last_pause_log_time,omitempty"`
	DownloadFilename  string    `json:"download_filename,omitempty"`
}

func (p Params) normalized() Params {
	t := dtransfer.Direction(strings.ToLower(strings.TrimSpace(string(p.TransferType))))
	if t == "" {
		t = dtransfer.DirectionUpload
	}
	p.TransferType = t
	p.DownloadFilename = strings.TrimSpace(p.DownloadFilename)
	if p.AddDisk != nil {
		d := *p.AddDisk
		d.Alias = strings.TrimSpace(d.Alias)
		d.Format = strings.ToLower(strings.TrimSpace(d.Format))
		if d.Format == "" {
			d.Format = "raw"
		}
		p.AddDisk = &d
	}
	return p
}

// TransferDiskImage opens an upload or download session for a disk image.
type TransferDiskImage struct {
	h      *Handler
	params Params
	ec     command.ExecContext

	// resolved by Validate
	domain *types.StorageDomain
	image  *types.DiskImage
	size   int64

	// set once the session unit of work committed
	imageID    uuid.UUID
	createdImg bool
	sessionID  uuid.UUID
}

var (
	_ command.Compensator = (*TransferDiskImage)(nil)
	_ command.Targeter    = (*TransferDiskImage)(nil)
)

func (c *TransferDiskImage) Type() command.ActionType { return ActionTransferDiskImage }

func (c *TransferDiskImage) upload() bool { return c.params.TransferType == dtransfer.DirectionUpload }

func (c *TransferDiskImage) PermissionSubjects() permissions.Requirement {
	if c.params.TransferType == dtransfer.DirectionDownload {
		return permissions.AllOf(permissions.Subject{
			ObjectID:    c.params.ImageID,
			ObjectType:  access.ObjectDisk,
			ActionGroup: access.ActionGroupConfigureDiskStorage,
		})
	}
	return permissions.AllOf(permissions.Subject{
		ObjectID:    c.params.StorageDomainID,
		ObjectType:  access.ObjectStorageDomain,
		ActionGroup: access.ActionGroupCreateDisk,
	})
}

func (c *TransferDiskImage) AuditEvents() command.AuditEvents {
	return command.AuditEvents{Success: EventInitiated, Failure: EventInitiateFailed}
}

func (c *TransferDiskImage) AuditTarget() string {
	switch {
	case c.imageID != uuid.Nil:
		return c.imageID.String()
	case c.params.ImageID != uuid.Nil:
		return c.params.ImageID.String()
	default:
		return c.params.StorageDomainID.String()
	}
}

func (c *TransferDiskImage) Validate(dbc dbctx.Context, v *command.Validation) {
	d := c.h.deps
	p := c.params
	if !v.Check(p.TransferType.Known(), ReasonInvalidTransferType, "transfer type must be upload or download") {
		return
	}

	domainID := p.StorageDomainID
	if c.upload() {
		if v.Check(p.AddDisk != nil && p.AddDisk.Alias != "", ReasonDiskAliasRequired, "an upload needs a disk alias") {
			c.size = p.AddDisk.SizeBytes
		}
		if p.TransferSize > 0 {
			c.size = p.TransferSize
		}
	} else {
		img, err := d.Images.GetByID(dbc, p.ImageID)
		if err != nil {
			v.Fault(err)
			return
		}
		if !v.Check(img != nil, ReasonDiskNotExist, "disk image does not exist") {
			return
		}
		c.image = img
		v.Check(img.Status == dcluster.ImageOK, ReasonDiskStatusIllegal, "disk image is not in OK status")
		domainID = img.StorageDomainID
		c.size = img.SizeBytes
		if p.TransferSize > 0 {
			c.size = p.TransferSize
		}
	}
	v.Check(c.size > 0, ReasonInvalidTransferSize, "transfer size must be positive")

	sd, err := d.Domains.GetByID(dbc, domainID)
	if err != nil {
		v.Fault(err)
		return
	}
	if !v.Check(sd != nil, ReasonDomainNotExist, "storage domain does not exist") {
		return
	}
	c.domain = sd
	v.Check(sd.Status == dcluster.StorageDomainActive, ReasonDomainStatusIllegal, "storage domain is not active")
	if c.upload() && c.size > 0 && sd.AvailableBytes < c.size {
		v.Fail(ReasonDomainSpaceLow, "not enough free space on the storage domain")
	}

	pool, err := d.Pools.GetByID(dbc, sd.StoragePoolID)
	if err != nil {
		v.Fault(err)
		return
	}
	if pool == nil || !d.Versions.IsFeatureEnabledForVersion(configstore.ImageTransferSupported, pool.CompatibilityVersion) {
		v.Fail(ReasonTransferNotSupported, "image transfer is not supported for the data center version")
	}
}

func (c *TransferDiskImage) Execute(ctx context.Context) (any, error) {
	const op = "transfer.initiate"
	d := c.h.deps
	var tk ticket.Ticket
	var imageID uuid.UUID
	err := c.h.writer.Execute(dbctx.New(ctx), op, func(dbc dbctx.Context) error {
		var reservation quota.Token
		if c.upload() {
			img := &types.DiskImage{
				Alias:           c.params.AddDisk.Alias,
				Description:     c.params.AddDisk.Description,
				StorageDomainID: c.domain.ID,
				SizeBytes:       c.size,
				Format:          c.params.AddDisk.Format,
				Status:          dcluster.ImageLocked,
			}
			if err := d.Images.Create(dbc, img); err != nil {
				return err
			}
			imageID = img.ID

			q, err := d.Ledger.ForOwner(dbc, c.domain.StoragePoolID, c.ec.ActorID)
			if err != nil {
				return err
			}
			reservation, err = d.Ledger.Reserve(dbc, q.ID, c.size)
			if err != nil {
				return err
			}
			if err := d.Images.SetQuota(dbc, img.ID, q.ID); err != nil {
				return err
			}
		} else {
			imageID = c.image.ID
			won, err := d.Images.UpdateStatus(dbc, imageID, []dcluster.ImageStatus{dcluster.ImageOK}, dcluster.ImageLocked)
			if err != nil {
				return err
			}
			if !won {
				return faults.New(faults.CodePreconditionFailed, op, "disk image is locked by another operation", nil)
			}
		}
		var err error
		tk, err = d.Tracker.Open(dbc, ticket.OpenInput{
			ImageID:         imageID,
			StorageDomainID: c.domain.ID,
			HostID:          d.Config.String(configstore.TransferHostID),
			OwnerID:         c.ec.ActorID,
			Direction:       c.params.TransferType,
			SizeBytes:       c.size,
			Reservation:     reservation,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	c.imageID = imageID
	c.createdImg = c.upload()
	c.sessionID = tk.Session.ID
	c.params.SessionExpiration = tk.Session.ExpiresAt
	c.params.RetryExtendTicket = true

	url := imageURL(c.domain.ID, imageID)
	if err := d.Agent.AddTicket(ctx, imageio.Ticket{
		UUID:     tk.Session.ID.String(),
		Size:     c.size,
		URL:      url,
		Timeout:  int64(c.h.lifetime() / time.Second),
		Ops:      ticket.OpsFor(c.params.TransferType),
		Filename: c.params.DownloadFilename,
	}); err != nil {
		return nil, faults.New(faults.CodeUnavailable, op, "register ticket with host agent", err)
	}
	c.h.log.Info("image transfer initiated",
		"session_id", tk.Session.ID,
		"image_id", imageID,
		"direction", c.params.TransferType,
		"size_bytes", c.size,
		"correlation_id", c.ec.CorrelationID,
	)
	return sessionResult(tk, url), nil
}

// Compensate closes the session, which releases its reservation, and undoes
// the disk changes the initiation made.
func (c *TransferDiskImage) Compensate(ctx context.Context) error {
	if c.sessionID == uuid.Nil {
		return nil
	}
	d := c.h.deps
	if _, err := d.Tracker.Close(ctx, c.sessionID, ticket.CloseInput{Reason: "initiation failed"}); err != nil {
		return err
	}
	return c.h.writer.Execute(dbctx.New(ctx), "transfer.initiate.compensate", func(dbc dbctx.Context) error {
		if c.createdImg {
			return d.Images.Delete(dbc, c.imageID)
		}
		_, err := d.Images.UpdateStatus(dbc, c.imageID, []dcluster.ImageStatus{dcluster.ImageLocked}, dcluster.ImageOK)
		return err
	})
}
