package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	domain "github.com/brc-ops/backoffice/internal/domain"
)

func newRateRouter(svc *stubRateService) http.Handler {
	return NewRouter(WithRateRoutes(NewRateHandlers(svc).Routes))
}

func TestRateQuote(t *testing.T) {
	svc := &stubRateService{quote: domain.CourierQuote{
		Country: "US",
		Weight:  decimal.RequireFromString("2.5"),
		Rates: []domain.CarrierRate{
			{Courier: "dhl", Rate: domain.RateOf(decimal.NewFromInt(1000)), FinalPrice: domain.FinalPrice(domain.RateOf(decimal.NewFromInt(1000)))},
			{Courier: "aramex", Rate: domain.NoService, FinalPrice: domain.NoService},
		},
		Cheapest:      "dhl",
		CheapestRate:  domain.RateOf(decimal.NewFromInt(1000)),
		CheapestFinal: domain.FinalPrice(domain.RateOf(decimal.NewFromInt(1000))),
		Benchmark:     domain.NoService,
	}}
	router := newRateRouter(svc)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/rates?country=us&weight=2.1&carriers=dhl,+aramex", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if svc.country != "us" || svc.weight.String() != "2.1" || len(svc.carriers) != 2 || svc.carriers[1] != "aramex" {
		t.Fatalf("unexpected service call country=%s weight=%s carriers=%v", svc.country, svc.weight, svc.carriers)
	}
	out := rr.Body.String()
	if !strings.Contains(out, `"finalPrice":1534`) {
		t.Fatalf("expected final price 1534, got %s", out)
	}
	if !strings.Contains(out, `"rate":"No Service"`) || !strings.Contains(out, `"benchmark":"No Service"`) {
		t.Fatalf("expected No Service labels, got %s", out)
	}
}

func TestRateQuoteRejectsBadWeight(t *testing.T) {
	router := newRateRouter(&stubRateService{})
	for _, query := range []string{"?country=US", "?country=US&weight=heavy"} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/rates"+query, nil))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", query, rr.Code)
		}
	}
}

func TestCourierRate(t *testing.T) {
	svc := &stubRateService{rate: domain.RateOf(decimal.NewFromInt(200))}
	router := newRateRouter(svc)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/rates/couriers/fedex?country=GB&weight=0.5", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["courier"] != "fedex" || body["rate"] != float64(200) || body["finalPrice"] != 306.8 {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestPutRateTable(t *testing.T) {
	svc := &stubRateService{}
	router := newRateRouter(svc)

	body := `{"bands":[{"weight":"0.5","rate":"850"},{"weight":1,"rate":1200}]}`
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/api/v1/rates/tables/dhl/Z3", strings.NewReader(body)))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	cmd := svc.tableCmd
	if cmd.Courier != "dhl" || cmd.Zone != "Z3" || len(cmd.Bands) != 2 || !cmd.Bands[1].Rate.Equal(decimal.NewFromInt(1200)) {
		t.Fatalf("unexpected command %+v", cmd)
	}
}

func TestPutZoneAndSpecialRates(t *testing.T) {
	svc := &stubRateService{}
	router := newRateRouter(svc)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/api/v1/rates/zones/dhl/us", strings.NewReader(`{"zone":"Z5"}`)))
	if rr.Code != http.StatusOK || svc.zoneCmd.Zone != "Z5" || svc.zoneCmd.Country != "us" {
		t.Fatalf("unexpected zone write %d %+v", rr.Code, svc.zoneCmd)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/api/v1/rates/special/aramex/AE", strings.NewReader(`{"bands":[{"weight":0.5,"rate":400}]}`)))
	if rr.Code != http.StatusOK || svc.specialCmd.Country != "AE" || len(svc.specialCmd.Bands) != 1 {
		t.Fatalf("unexpected special write %d %+v", rr.Code, svc.specialCmd)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/api/v1/rates/special/aramex/AE", nil))
	if rr.Code != http.StatusNoContent || len(svc.deleted) != 1 || svc.deleted[0] != [2]string{"aramex", "AE"} {
		t.Fatalf("unexpected delete %d %v", rr.Code, svc.deleted)
	}
}

func TestDeleteMissingSpecialRatesIs404(t *testing.T) {
	router := newRateRouter(&stubRateService{err: stubRepoError{notFound: true}})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/api/v1/rates/special/aramex/AE", nil))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}
