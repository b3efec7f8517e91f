package response

import (
	"strings"
	"testing"

	"google.golang.org/genai"

	"github.com/sastrawinata/wicara/domain/entities"
)

func mustMessage(t *testing.T, role entities.MessageRole, content string) *entities.Message {
	t.Helper()
	msg, err := entities.NewMessage(role, content)
	if err != nil {
		t.Fatalf("NewMessage failed: %v", err)
	}
	return msg
}

func TestConvertHistoryMapsRoles(t *testing.T) {
	failed := mustMessage(t, entities.MessageRoleUser, "garbled audio")
	failed.MarkProcessing()
	failed.MarkFailed("transcription failed")

	history := []*entities.Message{
		mustMessage(t, entities.MessageRoleSystem, "jawab dengan singkat"),
		mustMessage(t, entities.MessageRoleUser, "halo"),
		mustMessage(t, entities.MessageRoleAssistant, "hai, ada yang bisa dibantu?"),
		failed,
	}

	contents := convertHistory(history)
	if len(contents) != 2 {
		t.Fatalf("got %d contents, want 2 (system and failed excluded)", len(contents))
	}
	if contents[0].Role != string(genai.RoleUser) {
		t.Errorf("first role = %s, want user", contents[0].Role)
	}
	if contents[1].Role != string(genai.RoleModel) {
		t.Errorf("second role = %s, want model", contents[1].Role)
	}
}

func TestSystemInstructionFoldsSystemMessages(t *testing.T) {
	history := []*entities.Message{
		mustMessage(t, entities.MessageRoleSystem, "jawab dengan singkat"),
		mustMessage(t, entities.MessageRoleUser, "halo"),
	}

	instruction := systemInstruction(history)
	if !strings.Contains(instruction, systemPrompt) {
		t.Error("instruction lost the base prompt")
	}
	if !strings.Contains(instruction, "jawab dengan singkat") {
		t.Error("instruction lost the system message")
	}
	if strings.Contains(instruction, "halo") {
		t.Error("user content leaked into the system instruction")
	}
}
