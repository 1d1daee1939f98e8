package repository

import (
	"context"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"tradepost/internal/domain/entity"
	"tradepost/internal/domain/repository"
	"tradepost/pkg/errors"
)

// profilePartitions are checked in priority order; the first hit wins.
// "users" holds current accounts, "legacy_profiles" the pre-migration ones.
var profilePartitions = []string{"users", "legacy_profiles"}

type firestoreProfileRepository struct {
	client *firestore.Client
}

func NewFirestoreProfileRepository(client *firestore.Client) repository.ProfileRepository {
	return &firestoreProfileRepository{
		client: client,
	}
}

type profileDoc struct {
	Username  string `firestore:"username"`
	FullName  string `firestore:"fullName"`
	AvatarURL string `firestore:"avatarURL"`
	Role      string `firestore:"role"`
}

func (r *firestoreProfileRepository) Lookup(ctx context.Context, userID string) (*entity.Participant, error) {
	for _, partition := range profilePartitions {
		doc, err := r.client.Collection(partition).Doc(userID).Get(ctx)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				continue
			}
			return nil, errors.Repository("Failed to look up profile", err)
		}

		var profile profileDoc
		if err := doc.DataTo(&profile); err != nil {
			return nil, errors.Repository("Failed to parse profile data", err)
		}

		displayName := profile.Username
		if displayName == "" {
			displayName = profile.FullName
		}

		return &entity.Participant{
			UserID:      userID,
			DisplayName: displayName,
			AvatarURL:   profile.AvatarURL,
			Role:        profile.Role,
		}, nil
	}

	return nil, errors.NotFound("Profile", nil)
}
