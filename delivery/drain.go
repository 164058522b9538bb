package delivery

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/peernode/crypto"
)

// DrainOffline fetches every envelope relayed for this node, applies the
// receive path to each, and deletes only the ones that
// were fully processed (delivered, or dropped as a definite replay/
// malformed/unknown-sender case). An envelope that hit a genuine store
// error is left in place for the next drain.
func (p *Pipeline) DrainOffline(ctx context.Context) error {
	msgs, err := p.directory.FetchOffline(ctx, p.identity.Username)
	if err != nil {
		return err
	}

	var processedIDs []string
	for _, om := range msgs {
		raw, derr := crypto.DecodeB64(om.Ciphertext)
		if derr != nil {
			logrus.WithFields(logrus.Fields{
				"function": "DrainOffline",
				"relay_id": om.ID,
				"error":    derr.Error(),
			}).Warn("dropping relay entry with invalid base64 envelope")
			processedIDs = append(processedIDs, om.ID)
			continue
		}

		if rerr := p.Receive(raw, SourceOffline); rerr != nil {
			logrus.WithFields(logrus.Fields{
				"function": "DrainOffline",
				"relay_id": om.ID,
				"error":    rerr.Error(),
			}).Warn("leaving relay entry in place after store failure")
			continue
		}

		processedIDs = append(processedIDs, om.ID)
	}

	if len(processedIDs) == 0 {
		return nil
	}

	if err := p.directory.DeleteOffline(ctx, processedIDs); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "DrainOffline",
			"count":    len(processedIDs),
			"error":    err.Error(),
		}).Warn("failed to delete processed relay entries, will retry next drain")
		return nil
	}

	logrus.WithFields(logrus.Fields{
		"function": "DrainOffline",
		"count":    len(processedIDs),
	}).Info("offline drain completed")

	return nil
}
