package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
)

const (
	defaultAPIBase = "http://localhost:8080"
)

var (
	apiBase     string
	adminUser   string
	adminPass   string
	adminToken  string
	memberToken string
	profileID   string
	client      = &http.Client{Timeout: 30 * time.Second}
	testDate    string
	createdIDs  = make(map[string]string) // track created resources for cleanup
)

func main() {
	fmt.Println("=== Meal Tracker E2E Smoke Test ===")
	fmt.Println()

	apiBase = getEnv("API_BASE_URL", defaultAPIBase)
	adminUser = getEnv("SMOKE_ADMIN_USERNAME", getEnv("ADMIN_USERNAME", "admin"))
	adminPass = getEnv("SMOKE_ADMIN_PASSWORD", os.Getenv("ADMIN_PASSWORD"))

	fmt.Printf("API Base: %s\n", apiBase)
	fmt.Printf("Admin: %s / %s\n", adminUser, maskString(adminPass))
	fmt.Println()

	testDate = time.Now().UTC().Format("2006-01-02")

	steps := []struct {
		name string
		fn   func() error
	}{
		{"Healthz", testHealthz},
		{"Admin Login", testAdminLogin},
		{"Download Template", testTemplate},
		{"Import Plan (CSV)", testImportPlan},
		{"Create Profile", testCreateProfile},
		{"Select Profile", testSelectProfile},
		{"Today View", testToday},
		{"Mark Prepared", testMarkPrepared},
		{"Entry Status", testEntryStatus},
		{"Dish Details", testRecipe},
		{"Create Export (CSV)", testCreateExport},
		{"Download Export", testDownloadExport},
		{"Delete Export", testDeleteExport},
		{"Admin Stats", testAdminStats},
		{"Cleanup", testCleanup},
	}

	failed := false
	for i, step := range steps {
		fmt.Printf("[%d/%d] %s... ", i+1, len(steps), step.name)
		if err := step.fn(); err != nil {
			fmt.Printf("❌ FAILED\n")
			fmt.Printf("  Error: %v\n\n", err)
			failed = true
			break
		}
		fmt.Printf("✅ OK\n")
	}

	fmt.Println()
	if failed {
		fmt.Println("❌ SMOKE TEST FAILED")
		os.Exit(1)
	}

	fmt.Println("✅ ALL SMOKE TESTS PASSED")
}

func testHealthz() error {
	resp, err := send("GET", "/healthz", nil, "", "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return expectStatus(resp, http.StatusOK)
}

func testAdminLogin() error {
	if adminPass == "" {
		return fmt.Errorf("SMOKE_ADMIN_PASSWORD or ADMIN_PASSWORD must be set")
	}

	var result struct {
		AccessToken string `json:"access_token"`
		Role        string `json:"role"`
	}
	err := sendJSON("POST", "/v1/auth/admin/login", "", map[string]string{
		"username": adminUser,
		"password": adminPass,
	}, http.StatusOK, &result)
	if err != nil {
		return err
	}
	if result.Role != "admin" || result.AccessToken == "" {
		return fmt.Errorf("unexpected login response role=%q", result.Role)
	}
	adminToken = result.AccessToken
	return nil
}

func testTemplate() error {
	resp, err := send("GET", "/v1/admin/template", nil, "", adminToken)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := expectStatus(resp, http.StatusOK); err != nil {
		return err
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read body: %w", err)
	}
	if !strings.HasPrefix(string(data), "plan_date,meal_type,dish_name") {
		return fmt.Errorf("unexpected template header: %.60q", string(data))
	}
	return nil
}

func testImportPlan() error {
	csvData := "plan_date,meal_type,dish_name,description,calories,protein_g,carbs_g,fat_g,fiber_g\n" +
		testDate + ",snack,Smoke Test Yogurt,Greek yogurt with honey,180,15,20,4,0\n"

	var b bytes.Buffer
	mw := multipart.NewWriter(&b)
	part, err := mw.CreateFormFile("file", "smoke.csv")
	if err != nil {
		return err
	}
	part.Write([]byte(csvData))
	mw.Close()

	resp, err := send("POST", "/v1/admin/imports", &b, mw.FormDataContentType(), adminToken)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := expectStatus(resp, http.StatusOK); err != nil {
		return err
	}

	var result struct {
		Accepted int `json:"accepted"`
		Rejected []struct {
			Row    int    `json:"row"`
			Reason string `json:"reason"`
		} `json:"rejected"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode failed: %w", err)
	}
	if result.Accepted != 1 || len(result.Rejected) != 0 {
		return fmt.Errorf("accepted=%d rejected=%v", result.Accepted, result.Rejected)
	}
	return nil
}

func testCreateProfile() error {
	var result struct {
		ID string `json:"id"`
	}
	if err := sendJSON("POST", "/v1/profiles", "", map[string]string{"name": "Smoke Test"}, http.StatusCreated, &result); err != nil {
		return err
	}
	profileID = result.ID
	createdIDs["profile"] = result.ID
	return nil
}

func testSelectProfile() error {
	var result struct {
		AccessToken string `json:"access_token"`
	}
	if err := sendJSON("POST", "/v1/profiles/"+profileID+"/select", "", nil, http.StatusOK, &result); err != nil {
		return err
	}
	if result.AccessToken == "" {
		return fmt.Errorf("no member token issued (is AUTH_MODE=jwt?)")
	}
	memberToken = result.AccessToken
	return nil
}

func testToday() error {
	var result struct {
		Entries []struct {
			Entry struct {
				ID       string `json:"id"`
				DishName string `json:"dish_name"`
			} `json:"entry"`
			Status string `json:"status"`
		} `json:"entries"`
	}
	if err := sendJSON("GET", "/v1/today?date="+testDate, memberToken, nil, http.StatusOK, &result); err != nil {
		return err
	}

	for _, e := range result.Entries {
		if e.Entry.DishName == "Smoke Test Yogurt" {
			createdIDs["entry"] = e.Entry.ID
			return nil
		}
	}
	return fmt.Errorf("imported entry not found among %d entries", len(result.Entries))
}

func testMarkPrepared() error {
	var result struct {
		Status string `json:"status"`
	}
	return sendJSON("POST", "/v1/entries/"+createdIDs["entry"]+"/mark", memberToken,
		map[string]string{"status": "prepared"}, http.StatusOK, &result)
}

func testEntryStatus() error {
	var result struct {
		Status string `json:"status"`
	}
	if err := sendJSON("GET", "/v1/entries/"+createdIDs["entry"]+"/status", memberToken, nil, http.StatusOK, &result); err != nil {
		return err
	}
	if result.Status != "prepared" {
		return fmt.Errorf("expected prepared, got %q", result.Status)
	}
	return nil
}

func testRecipe() error {
	var result struct {
		Recipe struct {
			Text   string `json:"text"`
			Status string `json:"status"`
		} `json:"recipe"`
	}
	if err := sendJSON("GET", "/v1/entries/"+createdIDs["entry"]+"/recipe", memberToken, nil, http.StatusOK, &result); err != nil {
		return err
	}
	if strings.TrimSpace(result.Recipe.Text) == "" {
		return fmt.Errorf("empty dish details")
	}
	return nil
}

func testCreateExport() error {
	var result struct {
		ID        string `json:"id"`
		SizeBytes int64  `json:"size_bytes"`
	}
	err := sendJSON("POST", "/v1/exports", memberToken, map[string]string{
		"format": "csv",
		"from":   time.Now().UTC().AddDate(0, 0, -7).Format("2006-01-02"),
		"to":     testDate,
	}, http.StatusCreated, &result)
	if err != nil {
		return err
	}
	if result.SizeBytes < 10 {
		return fmt.Errorf("export size is %d bytes (too small)", result.SizeBytes)
	}
	createdIDs["export"] = result.ID
	return nil
}

func testDownloadExport() error {
	// Don't follow redirects automatically - we need to check redirect behavior
	originalCheckRedirect := client.CheckRedirect
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}
	defer func() { client.CheckRedirect = originalCheckRedirect }()

	resp, err := send("GET", "/v1/exports/"+createdIDs["export"]+"/download", nil, "", memberToken)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return expectBody(resp.Body, "date,meal_type")
	case http.StatusFound:
		location := resp.Header.Get("Location")
		if location == "" {
			return fmt.Errorf("redirect without Location header")
		}
		getResp, err := client.Get(location)
		if err != nil {
			return fmt.Errorf("failed to follow redirect: %w", err)
		}
		defer getResp.Body.Close()
		if err := expectStatus(getResp, http.StatusOK); err != nil {
			return fmt.Errorf("redirect failed: %w", err)
		}
		return expectBody(getResp.Body, "date,meal_type")
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("unexpected status=%d body=%s", resp.StatusCode, string(body))
}

func testDeleteExport() error {
	resp, err := send("DELETE", "/v1/exports/"+createdIDs["export"], nil, "", memberToken)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return expectStatus(resp, http.StatusNoContent)
}

func testAdminStats() error {
	var result struct {
		Members int `json:"members"`
		Entries int `json:"entries"`
	}
	if err := sendJSON("GET", "/v1/admin/stats", adminToken, nil, http.StatusOK, &result); err != nil {
		return err
	}
	if result.Members == 0 || result.Entries == 0 {
		return fmt.Errorf("unexpected stats members=%d entries=%d", result.Members, result.Entries)
	}
	return nil
}

func testCleanup() error {
	if id := createdIDs["entry"]; id != "" {
		resp, err := send("DELETE", "/v1/admin/entries/"+id, nil, "", adminToken)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNoContent {
			return fmt.Errorf("delete entry: status=%d", resp.StatusCode)
		}
	}

	resp, err := send("DELETE", "/v1/admin/profiles/"+createdIDs["profile"], nil, "", adminToken)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return expectStatus(resp, http.StatusNoContent)
}

// Helper functions

func send(method, path string, body io.Reader, contentType, bearer string) (*http.Response, error) {
	req, err := http.NewRequest(method, apiBase+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return client.Do(req)
}

func sendJSON(method, path, bearer string, payload interface{}, wantStatus int, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	resp, err := send(method, path, body, "application/json", bearer)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := expectStatus(resp, wantStatus); err != nil {
		return err
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode failed: %w", err)
		}
	}
	return nil
}

func expectStatus(resp *http.Response, want int) error {
	if resp.StatusCode != want {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("status=%d body=%s", resp.StatusCode, string(body))
	}
	return nil
}

func expectBody(r io.Reader, prefix string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read body: %w", err)
	}
	if !strings.HasPrefix(string(data), prefix) {
		return fmt.Errorf("unexpected body: %.60q", string(data))
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func maskString(s string) string {
	if s == "" {
		return "(not set)"
	}
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
