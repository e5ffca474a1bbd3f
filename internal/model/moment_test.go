package model

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByteArray_MarshalAsNumbers(t *testing.T) {
	data, err := json.Marshal(MomentInput{
		User:       User{ID: 1, Nickname: "UserName"},
		FrontPhoto: ByteArray{0xff, 0xd8, 0},
		BackPhoto:  ByteArray{1},
		Location:   "Budapest",
	})
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"user":{"userId":1,"nickname":"UserName"},"frontPhoto":[255,216,0],"backPhoto":[1],"location":"Budapest"}`,
		string(data))
}

func TestByteArray_NilMarshalsEmpty(t *testing.T) {
	data, err := json.Marshal(ByteArray(nil))
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestByteArray_UnmarshalForms(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want ByteArray
	}{
		{"numbers", `[1, 2, 255]`, ByteArray{1, 2, 255}},
		{"base64", `"AQL/"`, ByteArray{1, 2, 255}},
		{"null", `null`, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got ByteArray
			require.NoError(t, json.Unmarshal([]byte(tc.in), &got))
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestByteArray_UnmarshalRejectsOutOfRange(t *testing.T) {
	var got ByteArray
	assert.Error(t, json.Unmarshal([]byte(`[256]`), &got))
	assert.Error(t, json.Unmarshal([]byte(`[-1]`), &got))
}

func TestMomentInput_Validate(t *testing.T) {
	ok := MomentInput{User: User{ID: 3}, FrontPhoto: ByteArray{1}, BackPhoto: ByteArray{2}}
	assert.NoError(t, ok.Validate())

	missing := MomentInput{FrontPhoto: ByteArray{1}}
	err := missing.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidMoment))
	assert.Contains(t, err.Error(), "user is required")
	assert.Contains(t, err.Error(), "backPhoto is empty")
}
