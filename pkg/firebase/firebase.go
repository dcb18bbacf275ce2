package firebase

import (
	"context"
	"fmt"
	"log"
	"os"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// Options selects the Firebase project resources to open
type Options struct {
	CredentialsPath string
	ProjectID       string
	StorageBucket   string
	Firestore       bool
	Storage         bool
	Messaging       bool
}

// App holds the initialized Firebase app and the clients the client layer uses
type App struct {
	FirebaseApp *firebase.App
	AuthClient  *auth.Client
	Firestore   *firestore.Client
	Bucket      *storage.BucketHandle
	Messaging   *messaging.Client
}

// InitFirebase initializes the Firebase application, the authentication
// client and whichever of Firestore, Storage and Messaging opts asks for
func InitFirebase(ctx context.Context, opts Options) (*App, error) {
	if opts.CredentialsPath == "" {
		return nil, fmt.Errorf("Firebase credentials path not provided")
	}

	// Check if the credentials file exists
	if _, err := os.Stat(opts.CredentialsPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("Firebase credentials file not found at %s", opts.CredentialsPath)
	}

	opt := option.WithCredentialsFile(opts.CredentialsPath)
	conf := &firebase.Config{ProjectID: opts.ProjectID, StorageBucket: opts.StorageBucket}

	firebaseApp, err := firebase.NewApp(ctx, conf, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}

	authClient, err := firebaseApp.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting firebase auth client: %w", err)
	}
	app := &App{FirebaseApp: firebaseApp, AuthClient: authClient}

	if opts.Firestore {
		app.Firestore, err = firebaseApp.Firestore(ctx)
		if err != nil {
			return nil, fmt.Errorf("error getting firestore client: %w", err)
		}
	}

	if opts.Storage {
		client, err := firebaseApp.Storage(ctx)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("error getting storage client: %w", err)
		}
		app.Bucket, err = client.DefaultBucket()
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("error getting default bucket: %w", err)
		}
	}

	if opts.Messaging {
		app.Messaging, err = firebaseApp.Messaging(ctx)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("error getting messaging client: %w", err)
		}
	}

	log.Println("Firebase app and clients initialized successfully!")
	return app, nil
}

// Close releases the Firestore client, if one was opened
func (a *App) Close() {
	if a.Firestore != nil {
		if err := a.Firestore.Close(); err != nil {
			log.Printf("Error closing Firestore client: %v\n", err)
		}
	}
}
