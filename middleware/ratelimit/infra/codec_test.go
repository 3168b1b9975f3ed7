package infra

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"route-limiter/middleware/ratelimit/domain"
)

func TestJSONCodec_RoundTripIsExact(t *testing.T) {
	loc := time.FixedZone("BRT", -3*3600)
	in := domain.AccessLog{
		time.Date(2024, 3, 1, 12, 0, 0, 1, time.UTC),
		time.Date(2024, 3, 1, 12, 0, 0, 999999999, loc),
		time.Date(2024, 3, 1, 12, 0, 1, 0, time.UTC),
	}

	raw, err := JSONCodec{}.Encode(in)
	require.NoError(t, err)
	out, err := JSONCodec{}.Decode(raw)
	require.NoError(t, err)

	require.Len(t, out, len(in))
	for i := range in {
		require.True(t, in[i].Equal(out[i]), "entry %d: %s != %s", i, in[i], out[i])
	}
}

func TestLegacyCodec_MatchesOriginalFileFormat(t *testing.T) {
	c := LegacyCodec{Location: time.UTC}
	in := domain.AccessLog{time.Date(2023, 7, 4, 9, 5, 3, 0, time.UTC)}

	raw, err := c.Encode(in)
	require.NoError(t, err)
	require.Equal(t, `["07/04/2023, 09:05:03"]`, string(raw))

	out, err := c.Decode(raw)
	require.NoError(t, err)
	require.True(t, out[0].Equal(in[0]))
}

func TestLegacyCodec_TruncatesToSeconds(t *testing.T) {
	c := LegacyCodec{Location: time.UTC}
	in := domain.AccessLog{time.Date(2023, 7, 4, 9, 5, 3, 700_000_000, time.UTC)}

	raw, err := c.Encode(in)
	require.NoError(t, err)
	out, err := c.Decode(raw)
	require.NoError(t, err)
	require.True(t, out[0].Equal(time.Date(2023, 7, 4, 9, 5, 3, 0, time.UTC)))
}

func TestCodec_DecodeErrors(t *testing.T) {
	_, err := JSONCodec{}.Decode([]byte(`not json`))
	require.Error(t, err)

	_, err = JSONCodec{}.Decode([]byte(`["yesterday"]`))
	require.Error(t, err)
}
