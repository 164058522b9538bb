package controlplane

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/peernode/crypto"
	"github.com/opd-ai/peernode/delivery"
	"github.com/opd-ai/peernode/directory"
	"github.com/opd-ai/peernode/friend"
	"github.com/opd-ai/peernode/store"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Status:             "running",
		Username:           s.identity.Username,
		NodeID:             s.identity.NodeID,
		UptimeSeconds:      int64(s.time.Now().Sub(s.startedAt).Seconds()),
		FriendsCount:       len(s.store.ListFriends()),
		PeerPort:           s.peerPort,
		DirectoryConnected: s.directoryConnected.Load(),
		Version:            Version,
	})
}

func (s *Server) handleListFriends(w http.ResponseWriter, r *http.Request) {
	friends := s.store.ListFriends()
	out := make([]friendResponse, 0, len(friends))
	for _, f := range friends {
		out = append(out, toFriendResponse(f))
	}
	writeJSON(w, http.StatusOK, out)
}

func toFriendResponse(f *friend.Friend) friendResponse {
	keyStatus := "current"
	if f.KeyStatus == friend.StatusKeyChanged {
		keyStatus = "key_changed"
	}
	return friendResponse{
		Username:  f.Username,
		LastIP:    f.LastIP,
		LastSeen:  f.LastSeen,
		AddedAt:   f.AddedAt,
		KeyStatus: keyStatus,
	}
}

func (s *Server) handleAddFriend(w http.ResponseWriter, r *http.Request) {
	var req addFriendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}

	rec, err := s.directory.Lookup(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			writeError(w, http.StatusNotFound, "'"+req.Username+"' was not found in the directory")
			return
		}
		writeError(w, http.StatusInternalServerError, "directory lookup failed: "+err.Error())
		return
	}

	encPK, signPK, err := decodeRecordKeys(rec)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "directory returned malformed keys: "+err.Error())
		return
	}

	f, err := s.store.AddFriend(req.Username, encPK, signPK, rec.LastIP, rec.LastSeen)
	if err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			writeError(w, http.StatusConflict, "'"+req.Username+"' is already a friend")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, toFriendResponse(f))
}

func decodeRecordKeys(rec *directory.Record) (encPK, signPK [32]byte, err error) {
	encBytes, err := crypto.DecodeB64(rec.EncryptionPublicKey)
	if err != nil || len(encBytes) != 32 {
		return encPK, signPK, errors.New("invalid encryption public key")
	}
	signBytes, err := crypto.DecodeB64(rec.SigningPublicKey)
	if err != nil || len(signBytes) != 32 {
		return encPK, signPK, errors.New("invalid signing public key")
	}
	copy(encPK[:], encBytes)
	copy(signPK[:], signBytes)
	return encPK, signPK, nil
}

func (s *Server) handleRemoveFriend(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]
	if err := s.store.RemoveFriend(username); err != nil {
		writeError(w, http.StatusNotFound, "'"+username+"' is not a friend")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRepinFriend(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]

	rec, err := s.directory.Lookup(r.Context(), username)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			writeError(w, http.StatusNotFound, "'"+username+"' was not found in the directory")
			return
		}
		writeError(w, http.StatusInternalServerError, "directory lookup failed: "+err.Error())
		return
	}

	encPK, signPK, err := decodeRecordKeys(rec)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "directory returned malformed keys: "+err.Error())
		return
	}

	if err := s.store.RepinFriend(username, encPK, signPK); err != nil {
		writeError(w, http.StatusNotFound, "'"+username+"' is not a friend")
		return
	}

	f, err := s.store.LookupFriend(username)
	if err != nil {
		writeError(w, http.StatusNotFound, "'"+username+"' is not a friend")
		return
	}

	logrus.WithFields(logrus.Fields{
		"function": "handleRepinFriend",
		"username": username,
	}).Info("friend keys re-pinned via control plane")

	writeJSON(w, http.StatusOK, toFriendResponse(f))
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	peer := r.URL.Query().Get("peer")
	if peer == "" {
		writeError(w, http.StatusBadRequest, "peer is required")
		return
	}

	limit := 50
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			offset = n
		}
	}

	msgs, total, hasMore := s.store.ListMessages(peer, offset, limit)
	out := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageResponse{
			MsgID:          m.MsgID,
			Peer:           m.Peer,
			Direction:      m.Direction.String(),
			Text:           m.Plaintext,
			Timestamp:      m.Timestamp,
			Delivered:      m.Delivered,
			DeliveryMethod: m.DeliveryMethod.String(),
		})
	}

	writeJSON(w, http.StatusOK, messagesResponse{Messages: out, Total: total, HasMore: hasMore})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.To == "" {
		writeError(w, http.StatusBadRequest, "to is required")
		return
	}

	msgID, outcome, err := s.pipeline.Send(r.Context(), req.To, req.Text)
	if err != nil {
		switch {
		case errors.Is(err, delivery.ErrUnknownFriend):
			writeError(w, http.StatusNotFound, "'"+req.To+"' is not in your friend list, add them first")
		case errors.Is(err, delivery.ErrTooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "message text exceeds the 10,000 byte limit")
		case errors.Is(err, delivery.ErrKeyConflict):
			writeError(w, http.StatusConflict, "'"+req.To+"'s keys changed; re-pin before sending")
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	switch outcome {
	case delivery.Direct:
		writeJSON(w, http.StatusOK, sendMessageResponse{MsgID: msgID, Delivered: true, DeliveryMethod: "direct"})
	case delivery.Offline:
		writeJSON(w, http.StatusAccepted, sendMessageResponse{MsgID: msgID, Delivered: false, DeliveryMethod: "offline"})
	default:
		writeJSON(w, http.StatusAccepted, sendMessageResponse{MsgID: msgID, Delivered: false, DeliveryMethod: "offline_pending"})
	}
}

func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	msgID := mux.Vars(r)["msg_id"]
	if err := s.store.DeleteMessage(msgID); err != nil {
		writeError(w, http.StatusNotFound, "message not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
