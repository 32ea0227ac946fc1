package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sheets-etl/internal/models"
)

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "codigo_de_matricula", normalizeName("Código de matrícula"))
	assert.Equal(t, "grado_de_instruccion_e", normalizeName(" GRADO DE INSTRUCCIÓN_E "))
	assert.Equal(t, "i1", normalizeName("I1"))
	assert.Equal(t, "", normalizeName(" -- "))
}

func TestColumnIndexFind(t *testing.T) {
	idx := newColumnIndex([]string{"Marca temporal", "Código de matrícula ", "Fecha de pago de la primera cuota", "--"})

	assert.Equal(t, "Código de matrícula ", idx.find("Código de matrícula"))
	assert.Equal(t, "Fecha de pago de la primera cuota", idx.find("primera cuota"))
	assert.Equal(t, "", idx.find("Moneda"))
}

func TestParseDate(t *testing.T) {
	want := models.NewDate(2024, time.March, 14)
	for _, raw := range []string{"14/03/2024", "14/3/2024", "14/03/2024 18:22:05", "2024-03-14", "2024-03-14T08:00:00", "45365", "14/03/24"} {
		got, err := parseDate(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	got, err := parseDate("  ")
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	_, err = parseDate("31/31/2024")
	assert.Error(t, err)
}

func TestParseAmount(t *testing.T) {
	cases := map[string]string{
		"":            "0",
		"150":         "150",
		"S/ 1.234,50": "1234.5",
		"$1,234.56":   "1234.56",
		"150,5":       "150.5",
		"1,234":       "1234",
		"S/. 80":      "80",
		"99.999":      "100",
	}
	for raw, want := range cases {
		got, err := parseAmount(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got.String(), raw)
	}

	_, err := parseAmount("pendiente")
	assert.Error(t, err)
}

func TestParseCount(t *testing.T) {
	n, err := parseCount("3.0")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = parseCount("")
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = parseCount("2.5")
	assert.Error(t, err)
}

func TestNormalizeAccountAndCurrency(t *testing.T) {
	assert.Equal(t, "Banco de la Nación", normalizeAccount("banco de la nación"))
	assert.Equal(t, "Banco de México", normalizeAccount("BANCO DE MÉXICO / P"))
	assert.Equal(t, "Sin Especificar", normalizeAccount("Otros"))
	assert.Equal(t, "Western Union", normalizeAccount("WESTERN UNION"))
	assert.Equal(t, "", normalizeAccount(" "))

	assert.Equal(t, "MXN", inferCurrency("Banco de Ecuador / P"))
	assert.Equal(t, "MXN", inferCurrency("Banco de Mexico"))
	assert.Equal(t, "USD", inferCurrency("PayPal"))
	assert.Equal(t, "USD", inferCurrency("Banco de Ecuador"))
	assert.Equal(t, "CLP", inferCurrency("Banco de Chile"))
	assert.Equal(t, "PEN", inferCurrency("Yape"))
}

func TestPhoneCountry(t *testing.T) {
	assert.Equal(t, "Perú", phoneCountry("+51 987 654 321"))
	assert.Equal(t, "Argentina", phoneCountry("+54 9 11 5555 5555"))
	assert.Equal(t, "México", phoneCountry("+52 1 55 1234 5678"))
	assert.Equal(t, "Estados Unidos / Puerto Rico", phoneCountry("1 (787) 555-0101"))
	assert.Equal(t, "Desconocido", phoneCountry("987654321"))
	assert.Equal(t, "Desconocido", phoneCountry(""))
}

func TestTitleCaseAndFirstToken(t *testing.T) {
	assert.Equal(t, "María José", titleCase("  maría JOSÉ "))
	assert.Equal(t, "T12", firstToken(" T12 Juan Pérez"))
	assert.Equal(t, "", firstToken("   "))
}
