package server_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relves/groupsync/internal/storage/sqlite"
	"github.com/relves/groupsync/pkg/group"
	"github.com/relves/groupsync/pkg/invite"
	"github.com/relves/groupsync/pkg/keycrypto"
	"github.com/relves/groupsync/pkg/lifecycle"
	"github.com/relves/groupsync/pkg/server"
	"github.com/relves/groupsync/pkg/types"
)

func newTestServer(t *testing.T) (http.Handler, *group.Service) {
	t.Helper()

	manager := sqlite.NewStoreManager(t.TempDir())
	t.Cleanup(func() { manager.CloseAll() })

	identity, err := group.NewIdentity()
	require.NoError(t, err)

	svc, err := group.NewService(group.ServiceConfig{
		Stores:   manager,
		Engine:   lifecycle.NewEngine(),
		Identity: identity,
	})
	require.NoError(t, err)

	handler, err := server.NewServer(server.WithService(svc))
	require.NoError(t, err)
	return handler, svc
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any, out any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	} else {
		buf.WriteString("{}")
	}

	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if out != nil && rec.Code < 300 {
		require.NoError(t, json.NewDecoder(rec.Body).Decode(out))
	}
	return rec
}

func createGroup(t *testing.T, handler http.Handler, name string) string {
	t.Helper()
	var resp struct {
		GroupID string `json:"groupId"`
	}
	rec := doJSON(t, handler, http.MethodPost, "/groups", map[string]string{"name": name}, &resp)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotEmpty(t, resp.GroupID)
	return resp.GroupID
}

func TestServer_RequiresService(t *testing.T) {
	_, err := server.NewServer()
	assert.Error(t, err)
}

func TestCreateGroupAndListMembers(t *testing.T) {
	handler, _ := newTestServer(t)
	groupID := createGroup(t, handler, "Flat")

	var created types.MemberEvent
	rec := doJSON(t, handler, http.MethodPost, "/groups/"+groupID+"/members",
		map[string]any{"name": "Bob (virtual)", "isVirtual": true}, &created)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, types.EventMemberCreated, created.Type)

	var members map[string]types.MemberState
	rec = doJSON(t, handler, http.MethodGet, "/groups/"+groupID+"/members", nil, &members)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, members, created.MemberID)
	assert.Equal(t, "Bob (virtual)", members[created.MemberID].Name)
}

func TestListMembers_StatusFilter(t *testing.T) {
	handler, _ := newTestServer(t)
	groupID := createGroup(t, handler, "Flat")

	var created types.MemberEvent
	doJSON(t, handler, http.MethodPost, "/groups/"+groupID+"/members",
		map[string]any{"name": "Alice", "isVirtual": true}, &created)

	rec := doJSON(t, handler, http.MethodPost,
		fmt.Sprintf("/groups/%s/members/%s/retire", groupID, created.MemberID), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var retired map[string]types.MemberState
	rec = doJSON(t, handler, http.MethodGet, "/groups/"+groupID+"/members?status=retired", nil, &retired)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, retired, created.MemberID)

	var active map[string]types.MemberState
	rec = doJSON(t, handler, http.MethodGet, "/groups/"+groupID+"/members?status=active", nil, &active)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, active)

	rec = doJSON(t, handler, http.MethodGet, "/groups/"+groupID+"/members?status=bogus", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRejectedTransitionReturnsConflict(t *testing.T) {
	handler, _ := newTestServer(t)
	groupID := createGroup(t, handler, "Flat")

	var created types.MemberEvent
	doJSON(t, handler, http.MethodPost, "/groups/"+groupID+"/members",
		map[string]any{"name": "Alice", "isVirtual": true}, &created)

	path := fmt.Sprintf("/groups/%s/members/%s/retire", groupID, created.MemberID)
	rec := doJSON(t, handler, http.MethodPost, path, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, path, nil, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "Member is already retired")
}

func TestAppendEventsEndpoint(t *testing.T) {
	handler, svc := newTestServer(t)
	groupID := createGroup(t, handler, "Flat")

	var created types.MemberEvent
	doJSON(t, handler, http.MethodPost, "/groups/"+groupID+"/members",
		map[string]any{"name": "Alice", "isVirtual": true}, &created)

	events, err := svc.Events(t.Context(), types.GroupID(groupID))
	require.NoError(t, err)

	var resp struct {
		Inserted int `json:"inserted"`
	}
	rec := doJSON(t, handler, http.MethodPost, "/groups/"+groupID+"/events", events, &resp)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, resp.Inserted)
}

func TestCanonicalEndpoint(t *testing.T) {
	handler, _ := newTestServer(t)
	groupID := createGroup(t, handler, "Flat")

	var virtual, real types.MemberEvent
	doJSON(t, handler, http.MethodPost, "/groups/"+groupID+"/members",
		map[string]any{"name": "Bob (virtual)", "isVirtual": true}, &virtual)

	pair, err := keycrypto.GenerateAgreementKeyPair()
	require.NoError(t, err)
	doJSON(t, handler, http.MethodPost, "/groups/"+groupID+"/members",
		map[string]any{"name": "Bob", "publicKey": pair.Public.Bytes()}, &real)

	rec := doJSON(t, handler, http.MethodPost,
		fmt.Sprintf("/groups/%s/members/%s/replace", groupID, virtual.MemberID),
		map[string]string{"replacedById": real.MemberID}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resolved map[string]string
	rec = doJSON(t, handler, http.MethodGet,
		fmt.Sprintf("/groups/%s/members/%s/canonical", groupID, virtual.MemberID), nil, &resolved)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, real.MemberID, resolved["canonicalId"])
	assert.Equal(t, virtual.MemberID, resolved["rootId"])
	assert.Equal(t, "Bob", resolved["displayName"])
}

func TestInviteAndRotateEndpoints(t *testing.T) {
	handler, _ := newTestServer(t)
	groupID := createGroup(t, handler, "Ski Trip")

	var rotated map[string]int
	rec := doJSON(t, handler, http.MethodPost, "/groups/"+groupID+"/keys/rotate", nil, &rotated)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, rotated["version"])

	var inviteResp map[string]string
	rec = doJSON(t, handler, http.MethodPost, "/groups/"+groupID+"/invite",
		map[string]string{"baseUrl": "https://app.example.com"}, &inviteResp)
	require.Equal(t, http.StatusOK, rec.Code)

	link, err := invite.Decode(inviteResp["link"])
	require.NoError(t, err)
	assert.Equal(t, types.GroupID(groupID), link.GroupID)
	assert.Equal(t, "Ski Trip", link.GroupName)
}

func TestAdmitAndJoinEndpoints(t *testing.T) {
	aliceHandler, _ := newTestServer(t)
	bobHandler, bobSvc := newTestServer(t)

	groupID := createGroup(t, aliceHandler, "Ski Trip")

	bobPub := keycrypto.ExportAgreementPublicKey(bobSvc.Identity().Agreement.Public)

	var wire types.KeyPackageWire
	rec := doJSON(t, aliceHandler, http.MethodPost, "/groups/"+groupID+"/admit",
		map[string]string{"recipientPublicKey": bobPub}, &wire)
	require.Equal(t, http.StatusOK, rec.Code)

	var joined map[string]any
	rec = doJSON(t, bobHandler, http.MethodPost, "/join",
		map[string]any{"groupName": "Ski Trip", "package": wire}, &joined)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, groupID, joined["groupId"])

	// A tampered package blocks the join.
	wire.Signature = "AAAA" + wire.Signature[4:]
	rec = doJSON(t, bobHandler, http.MethodPost, "/join",
		map[string]any{"groupName": "Ski Trip", "package": wire}, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUnknownGroupReturnsNotFound(t *testing.T) {
	handler, _ := newTestServer(t)

	rec := doJSON(t, handler, http.MethodPost, "/groups/nope/invite",
		map[string]string{"baseUrl": "https://x"}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// newServerWithDataDir is newTestServer with the data directory exposed,
// for tests asserting on filesystem side effects.
func newServerWithDataDir(t *testing.T, dataDir string) http.Handler {
	t.Helper()

	manager := sqlite.NewStoreManager(dataDir)
	t.Cleanup(func() { manager.CloseAll() })

	identity, err := group.NewIdentity()
	require.NoError(t, err)

	svc, err := group.NewService(group.ServiceConfig{
		Stores:   manager,
		Engine:   lifecycle.NewEngine(),
		Identity: identity,
	})
	require.NoError(t, err)

	handler, err := server.NewServer(server.WithService(svc))
	require.NoError(t, err)
	return handler
}

func TestPathLikeGroupIDRejected(t *testing.T) {
	base := t.TempDir()
	dataDir := filepath.Join(base, "data")
	handler := newServerWithDataDir(t, dataDir)

	// Encoded separators survive routing and reach the handler as a
	// single path segment; they must never reach the filesystem.
	req := httptest.NewRequest(http.MethodGet, "/groups/..%2F..%2Fescaped/members", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	_, err := os.Stat(filepath.Join(base, "escaped"))
	assert.True(t, os.IsNotExist(err), "no database outside the data directory")
	_, err = os.Stat(filepath.Join(dataDir, "groups"))
	assert.True(t, os.IsNotExist(err), "no database inside it either")
}

func TestReadDoesNotMintStoreForUnknownGroup(t *testing.T) {
	base := t.TempDir()
	dataDir := filepath.Join(base, "data")
	handler := newServerWithDataDir(t, dataDir)

	req := httptest.NewRequest(http.MethodGet, "/groups/no-such-group/members", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	_, err := os.Stat(filepath.Join(dataDir, "groups", "no-such-group"))
	assert.True(t, os.IsNotExist(err))
}
