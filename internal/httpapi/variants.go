package httpapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"varda/internal/domain"
	"varda/internal/selection"
	"varda/internal/verr"
)

type variantFrequencyResponse struct {
	ID           string  `json:"id"`
	Chrom        string  `json:"chrom"`
	Begin        int64   `json:"begin"`
	End          int64   `json:"end"`
	Observed     string  `json:"observed"`
	Class        string  `json:"class"`
	ObservedCt   int     `json:"observed_count"`
	Covered      int     `json:"covered"`
	TotalSupport int     `json:"total_support"`
	Frequency    float64 `json:"frequency,omitempty"`
	FrequencyOK  bool    `json:"frequency_defined"`
}

// getVariantFrequency answers /variants/:id/frequency?selection=<expr>, the
// HTTP front door onto the frequency engine: compile the selection once,
// run it against the named variant's bin, and report the ratio plus its
// numerator/denominator.
func getVariantFrequency(c echo.Context) error {
	vc := asVardaContext(c)
	ctx := c.Request().Context()

	variant, err := vc.Store.Variants().Get(ctx, c.Param("id"))
	if err != nil {
		return err
	}

	selExpr := c.QueryParam("selection")
	if selExpr == "" {
		selExpr = "*"
	}
	expr, err := selection.Parse(selExpr)
	if err != nil {
		return verr.Wrap(verr.BadRequest, err, "httpapi: unparseable selection expression")
	}

	result, err := vc.Frequency.Frequency(ctx, variant, expr)
	if err != nil {
		return err
	}
	ratio, ok := result.Ratio()

	return c.JSON(http.StatusOK, variantFrequencyResponse{
		ID:           variant.ID,
		Chrom:        variant.Chrom,
		Begin:        variant.Begin,
		End:          variant.End,
		Observed:     variant.Observed,
		Class:        string(variant.Class),
		ObservedCt:   result.Observed,
		Covered:      result.Covered,
		TotalSupport: result.TotalSupport,
		Frequency:    ratio,
		FrequencyOK:  ok,
	})
}

type overlappingVariantsResponse struct {
	Variants []domain.Variant `json:"variants"`
}

// listOverlappingVariants answers /variants?chrom=&begin=&end=, resolving
// bins with the default scheme and delegating the interval filter to the
// store's OverlappingBins query.
func listOverlappingVariants(c echo.Context) error {
	vc := asVardaContext(c)
	ctx := c.Request().Context()

	chrom := c.QueryParam("chrom")
	if chrom == "" {
		return verr.New(verr.BadRequest, "httpapi: chrom is required")
	}
	begin, err := strconv.ParseInt(c.QueryParam("begin"), 10, 64)
	if err != nil {
		return verr.Wrap(verr.BadRequest, err, "httpapi: invalid begin")
	}
	end, err := strconv.ParseInt(c.QueryParam("end"), 10, 64)
	if err != nil {
		return verr.Wrap(verr.BadRequest, err, "httpapi: invalid end")
	}

	bins := vc.Frequency.Scheme.Overlapping(begin-1, end)
	variants, err := vc.Store.Variants().OverlappingBins(ctx, chrom, begin, end, bins)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, overlappingVariantsResponse{Variants: variants})
}
