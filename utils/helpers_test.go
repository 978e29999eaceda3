package utils

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeClass(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "lower with space", input: "cse 3a", want: "CSE3A"},
		{name: "dashes", input: "ece-2-b", want: "ECE2B"},
		{name: "already normal", input: "ME1", want: "ME1"},
		{name: "empty", input: "", want: ""},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizeClass(tc.input))
		})
	}
}

func TestPercentage(t *testing.T) {
	assert.Equal(t, 0.0, Percentage(0, 0))
	assert.Equal(t, 0.0, Percentage(5, 0))
	assert.Equal(t, 66.67, Percentage(2, 3))
	assert.Equal(t, 33.33, Percentage(1, 3))
	assert.Equal(t, 100.0, Percentage(4, 4))
	assert.Equal(t, 87.5, Percentage(7, 8))
}

func TestGenerateCode(t *testing.T) {
	re := regexp.MustCompile(`^A-[0-9a-f]{6}$`)
	for i := 0; i < 20; i++ {
		assert.Regexp(t, re, GenerateCode("A"))
	}
	assert.Regexp(t, regexp.MustCompile(`^EX-[0-9a-f]{6}$`), GenerateCode("EX"))
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	assert.True(t, IsBcryptHash(hash))
	assert.False(t, IsBcryptHash("s3cret"))
	assert.NoError(t, CheckPassword("s3cret", hash))
	assert.Error(t, CheckPassword("wrong", hash))
}

func TestIsValidDate(t *testing.T) {
	assert.True(t, IsValidDate("2024-02-29"))
	assert.False(t, IsValidDate("2023-02-29"))
	assert.False(t, IsValidDate("29/02/2024"))
}

type sampleRequest struct {
	Enrollment string `json:"enrollment" validate:"required"`
	Total      int    `json:"total" validate:"gte=0"`
}

func TestValidateStructUsesJSONNames(t *testing.T) {
	err := ValidateStruct(sampleRequest{Total: -1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "enrollment")
	assert.Contains(t, err.Error(), "total")
}

func TestEnrollmentRange(t *testing.T) {
	got, err := EnrollmentRange("0101CS221008", "0101CS221011")
	require.NoError(t, err)
	assert.Equal(t, []string{"0101CS221008", "0101CS221009", "0101CS221010", "0101CS221011"}, got)

	_, err = EnrollmentRange("0101CS221010", "0101CS221001")
	assert.Error(t, err)
	_, err = EnrollmentRange("0101CS221001", "0101IT221005")
	assert.Error(t, err)
	_, err = EnrollmentRange("0101CS2210AB", "0101CS221005")
	assert.Error(t, err)
}
