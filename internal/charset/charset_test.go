package charset_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tavernapos/cashcore/internal/charset"
)

func TestNewReader_UTF8Passthrough(t *testing.T) {
	input := "Order Ref;Amount;Status\ntable-4/188;500,00;Settled\n"

	r, err := charset.NewReader(bytes.NewReader([]byte(input)))
	require.NoError(t, err)

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, input, string(got))
}

func TestNewReader_StripsUTF8BOM(t *testing.T) {
	content := "Order Ref;Amount\n"
	input := append([]byte{0xEF, 0xBB, 0xBF}, content...)

	r, err := charset.NewReader(bytes.NewReader(input))
	require.NoError(t, err)

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, content, string(got))
}

func TestNewReader_Windows1252(t *testing.T) {
	// "Cartão;São" in Windows-1252: ã = 0xE3.
	input := []byte{'C', 'a', 'r', 't', 0xE3, 'o', ';', 'S', 0xE3, 'o', '\n'}

	r, err := charset.NewReader(bytes.NewReader(input))
	require.NoError(t, err)

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "Cartão;São\n", string(got))
}

func TestNewReader_UTF16LE(t *testing.T) {
	// "Ref\n" in UTF-16 LE with BOM.
	input := []byte{0xFF, 0xFE, 'R', 0x00, 'e', 0x00, 'f', 0x00, '\n', 0x00}

	r, err := charset.NewReader(bytes.NewReader(input))
	require.NoError(t, err)

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "Ref\n", string(got))
}
