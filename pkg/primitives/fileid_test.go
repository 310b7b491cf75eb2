package primitives

import (
	"testing"
)

func TestFileID_IsValid(t *testing.T) {
	tests := []struct {
		name     string
		fileID   FileID
		expected bool
	}{
		{"Zero FileID is invalid", FileID(0), false},
		{"Non-zero FileID is valid", FileID(12345), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.fileID.IsValid()
			if result != tt.expected {
				t.Errorf("expected IsValid=%v, got %v", tt.expected, result)
			}
		})
	}
}

func TestFileID_AsUint64(t *testing.T) {
	fileID := FileID(9876543210)
	result := fileID.AsUint64()
	if result != 9876543210 {
		t.Errorf("expected 9876543210, got %d", result)
	}
}

func TestFileID_String(t *testing.T) {
	fileID := FileID(12345)
	result := fileID.String()
	expected := "FileID(12345)"
	if result != expected {
		t.Errorf("expected '%s', got '%s'", expected, result)
	}
}

func TestNewFileIDFromUint64(t *testing.T) {
	value := uint64(9876543210)
	fileID := NewFileIDFromUint64(value)
	if fileID.AsUint64() != value {
		t.Errorf("expected %d, got %d", value, fileID.AsUint64())
	}
}

func TestFilepath_FileID_Integration(t *testing.T) {
	tablePath := Filepath("/data/users.dat")
	indexPath := Filepath("/data/indexes/users_id.idx")

	tableFileID := tablePath.Hash()
	indexFileID := indexPath.Hash()

	if tableFileID == indexFileID {
		t.Errorf("different paths should have different FileIDs")
	}

	tableFileID2 := tablePath.Hash()
	if tableFileID != tableFileID2 {
		t.Errorf("same path should produce same FileID")
	}
}
