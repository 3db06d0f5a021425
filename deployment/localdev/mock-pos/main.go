package main

import (
	"crypto/sha256"
	"encoding/json"
	"log"
	"math"
	"net/http"
	"time"
)

// Deterministic retail fixtures: four weeks of seasonal demand per product,
// a small catalog and matching stock snapshots. The embeddings endpoint
// hashes the prompt so the same text always maps to the same vector.

type product struct {
	ID                string `json:"id"`
	StoreID           string `json:"store_id"`
	Name              string `json:"name"`
	Description       string `json:"description"`
	Category          string `json:"category"`
	Price             string `json:"price"`
	MinStockThreshold int    `json:"min_stock_threshold"`
}

type transaction struct {
	Timestamp time.Time `json:"timestamp"`
	Quantity  int       `json:"quantity"`
	UnitPrice string    `json:"unit_price"`
}

var catalog = []product{
	{ID: "sku-milk-1l", StoreID: "store-1", Name: "Whole Milk 1L", Description: "Fresh whole milk, 3.5% fat", Category: "dairy", Price: "1.89", MinStockThreshold: 24},
	{ID: "sku-bread-sour", StoreID: "store-1", Name: "Sourdough Bread", Description: "Stone-baked sourdough loaf", Category: "bakery", Price: "3.49", MinStockThreshold: 12},
	{ID: "sku-eggs-10", StoreID: "store-1", Name: "Free Range Eggs 10pk", Description: "Size M free range eggs", Category: "dairy", Price: "4.20", MinStockThreshold: 18},
	{ID: "sku-apple-gala", StoreID: "store-1", Name: "Gala Apples 1kg", Description: "Sweet gala apples", Category: "produce", Price: "2.60", MinStockThreshold: 20},
}

var stock = map[string]int{
	"sku-milk-1l":    14,
	"sku-bread-sour": 40,
	"sku-eggs-10":    3,
	"sku-apple-gala": 55,
}

var prices = map[string]string{
	"sku-milk-1l":    "1.89",
	"sku-bread-sour": "3.49",
	"sku-eggs-10":    "4.20",
	"sku-apple-gala": "2.60",
}

// baseDemand gives each product a distinct daily volume.
var baseDemand = map[string]float64{
	"sku-milk-1l":    22,
	"sku-bread-sour": 11,
	"sku-eggs-10":    8,
	"sku-apple-gala": 15,
}

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/api/v1/pos/transactions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			ProductID string `json:"product_id"`
			StoreID   string `json:"store_id"`
			Start     string `json:"start"`
			End       string `json:"end"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		start, err1 := time.Parse(time.RFC3339, req.Start)
		end, err2 := time.Parse(time.RFC3339, req.End)
		if err1 != nil || err2 != nil || !end.After(start) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		writeJSON(w, map[string]any{
			"transactions": syntheticTransactions(req.ProductID, start, end),
		})
	})

	mux.HandleFunc("/api/v1/pos/snapshot", func(w http.ResponseWriter, r *http.Request) {
		productID := r.URL.Query().Get("product_id")
		qty, ok := stock[productID]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, map[string]any{
			"product_id":  productID,
			"store_id":    r.URL.Query().Get("store_id"),
			"observed_at": time.Now().UTC(),
			"quantity":    qty,
		})
	})

	mux.HandleFunc("/api/v1/pos/products", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"products": catalog})
	})

	mux.HandleFunc("/api/embeddings", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Model  string `json:"model"`
			Prompt string `json:"prompt"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		writeJSON(w, map[string]any{"embedding": hashEmbedding(req.Model + "|" + req.Prompt)})
	})

	logger := log.New(log.Writer(), "pos-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:    ":8090",
		Handler: logRequests(logger, mux),
	}

	logger.Println("listening on :8090")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

// syntheticTransactions emits one sale per day with a weekend uplift, so the
// aggregated series has a clean weekly cycle the forecaster can lock onto.
func syntheticTransactions(productID string, start, end time.Time) []transaction {
	base, ok := baseDemand[productID]
	if !ok {
		return []transaction{}
	}
	price := prices[productID]

	var out []transaction
	for day := start.Truncate(24 * time.Hour); day.Before(end); day = day.Add(24 * time.Hour) {
		if day.Before(start) {
			continue
		}
		qty := base
		switch day.Weekday() {
		case time.Saturday:
			qty *= 1.6
		case time.Sunday:
			qty *= 1.4
		}
		out = append(out, transaction{
			Timestamp: day.Add(10 * time.Hour),
			Quantity:  int(math.Round(qty)),
			UnitPrice: price,
		})
	}
	return out
}

// hashEmbedding derives a fixed 16-dimensional unit vector from the input.
func hashEmbedding(input string) []float32 {
	sum := sha256.Sum256([]byte(input))
	vec := make([]float32, 16)
	var norm float64
	for i := range vec {
		v := float64(int(sum[i*2])<<8|int(sum[i*2+1]))/65535.0 - 0.5
		vec[i] = float32(v)
		norm += v * v
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
