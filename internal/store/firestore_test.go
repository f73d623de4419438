package store

import (
	"context"
	"os"
	"testing"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// TestFirestore_Contract runs against the Firestore emulator, e.g.
//
//	gcloud emulators firestore start --host-port=localhost:8080
//	FIRESTORE_EMULATOR_HOST=localhost:8080 go test ./internal/store/
func TestFirestore_Contract(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}

	ctx := context.Background()
	client, err := firestore.NewClient(ctx, "fsadmin-test")
	require.NoError(t, err)
	defer client.Close()

	// a fresh collection per run keeps reruns independent
	runContract(t, NewFirestore(client), "users-"+uuid.NewString())
}
