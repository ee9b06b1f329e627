package ticket

import (
	clusterrepo "github.com/yungbote/dcengine/internal/data/repos/cluster"
	types "github.com/yungbote/dcengine/internal/domain"
	dcluster "github.com/yungbote/dcengine/internal/domain/cluster"
	dtransfer "github.com/yungbote/dcengine/internal/domain/transfer"
	"github.com/yungbote/dcengine/internal/platform/dbctx"
)

// EndHook runs in the unit of work that ends a session, after this caller
// won the status transition.
type EndHook func(dbc dbctx.Context, sess *types.TransferSession, to dtransfer.SessionStatus, in CloseInput) error

// ReleaseImage takes the session's image out of LOCKED. A download always
// returns it to OK; an upload is OK only when closed as succeeded and is
// otherwise left ILLEGAL.
func ReleaseImage(images clusterrepo.DiskImageRepo) EndHook {
	return func(dbc dbctx.Context, sess *types.TransferSession, to dtransfer.SessionStatus, in CloseInput) error {
		_, err := images.UpdateStatus(dbc, sess.ImageID, []dcluster.ImageStatus{dcluster.ImageLocked}, ReleasedStatus(sess.Direction, to, in.Succeeded))
		return err
	}
}

// ReleasedStatus is the image status a session ending leaves behind.
func ReleasedStatus(dir dtransfer.Direction, to dtransfer.SessionStatus, succeeded bool) dcluster.ImageStatus {
	if dir == dtransfer.DirectionUpload && !(to == dtransfer.SessionClosed && succeeded) {
		return dcluster.ImageIllegal
	}
	return dcluster.ImageOK
}
