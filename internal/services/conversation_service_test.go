package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"FluxMessenger/server/internal/models"
)

func TestValidateNewConversation(t *testing.T) {
	tests := []struct {
		name    string
		creator int64
		input   CreateConversationInput
		wantErr string
	}{
		{
			name:    "direct conversation with one other member",
			creator: 1,
			input:   CreateConversationInput{MemberIDs: []int64{2}},
		},
		{
			name:    "direct conversation with no other member",
			creator: 1,
			input:   CreateConversationInput{MemberIDs: []int64{}},
			wantErr: "a direct conversation has exactly two members",
		},
		{
			name:    "direct conversation with only the creator listed",
			creator: 1,
			input:   CreateConversationInput{MemberIDs: []int64{1}},
			wantErr: "a direct conversation has exactly two members",
		},
		{
			name:    "direct conversation with too many members",
			creator: 1,
			input:   CreateConversationInput{MemberIDs: []int64{2, 3}},
			wantErr: "a direct conversation has exactly two members",
		},
		{
			name:    "group with name and members",
			creator: 1,
			input:   CreateConversationInput{IsGroup: true, Name: "design", MemberIDs: []int64{2, 3}},
		},
		{
			name:    "group without a name",
			creator: 1,
			input:   CreateConversationInput{IsGroup: true, MemberIDs: []int64{2}},
			wantErr: "a group conversation requires a name",
		},
		{
			name:    "group with nobody besides the creator",
			creator: 1,
			input:   CreateConversationInput{IsGroup: true, Name: "design", MemberIDs: []int64{1}},
			wantErr: "a group conversation requires at least one member besides the creator",
		},
		{
			name:    "duplicate member ids",
			creator: 1,
			input:   CreateConversationInput{IsGroup: true, Name: "design", MemberIDs: []int64{2, 2}},
			wantErr: "duplicate member id 2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateNewConversation(tt.creator, tt.input)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.True(t, models.IsValidationError(err))
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}

func TestValidateMemberRemoval(t *testing.T) {
	direct := &models.Conversation{ID: 1}
	group := &models.Conversation{ID: 2, IsGroup: true}

	tests := []struct {
		name    string
		conv    *models.Conversation
		target  *models.Member
		admins  int
		wantErr string
	}{
		{
			name:    "direct conversation keeps both members",
			conv:    direct,
			target:  &models.Member{UserID: 2, Role: models.RoleMember},
			wantErr: "cannot remove members from a direct conversation",
		},
		{
			name:   "group regular member",
			conv:   group,
			target: &models.Member{UserID: 2, Role: models.RoleMember},
		},
		{
			name:   "group absent member is a no-op",
			conv:   group,
			target: nil,
		},
		{
			name:   "group admin with another admin left",
			conv:   group,
			target: &models.Member{UserID: 2, Role: models.RoleAdmin},
			admins: 2,
		},
		{
			name:    "last admin of a group",
			conv:    group,
			target:  &models.Member{UserID: 2, Role: models.RoleAdmin},
			admins:  1,
			wantErr: "cannot remove the last admin of a group conversation",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateMemberRemoval(tt.conv, tt.target, tt.admins)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.True(t, models.IsValidationError(err))
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}
