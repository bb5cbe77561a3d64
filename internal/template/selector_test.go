package template

import (
	"reflect"
	"testing"

	"podnotes/internal/config"
	"podnotes/internal/feed"
)

func testCategories() config.Categories {
	return config.Categories{
		Threshold: 1,
		Table: []config.Category{
			{Name: "tech", Keywords: []string{"kubernetes", "golang"}, Templates: []string{"tools"}},
			{Name: "health", Keywords: []string{"sleep", "nutrition"}, Templates: []string{"takeaways"}},
		},
	}
}

func TestSelectDefaultsOnly(t *testing.T) {
	ep := feed.Episode{Title: "An Unremarkable Chat"}
	got := Select(ep, testCategories(), []string{"summary", "quotes"}, nil)
	want := []string{"summary", "quotes"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestSelectUnionsCategoryTemplates(t *testing.T) {
	ep := feed.Episode{Title: "Deep Dive: Kubernetes Autoscaling"}
	got := Select(ep, testCategories(), []string{"summary", "quotes"}, nil)
	want := []string{"summary", "quotes", "tools"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestSelectOverrideReplacesEverything(t *testing.T) {
	ep := feed.Episode{Title: "Deep Dive: Kubernetes Autoscaling"}
	got := Select(ep, testCategories(), []string{"summary"}, []string{"quotes", "quotes", "tools"})
	want := []string{"quotes", "tools"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestSelectDeduplicates(t *testing.T) {
	cats := testCategories()
	ep := feed.Episode{Title: "Golang tooling special"}
	got := Select(ep, cats, []string{"summary", "tools"}, nil)
	want := []string{"summary", "tools"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestInferCategoryThreshold(t *testing.T) {
	cats := testCategories()
	cats.Threshold = 2

	ep := feed.Episode{Title: "Kubernetes only"}
	if cat := InferCategory(ep, cats); cat != nil {
		t.Errorf("expected no match below threshold, got %q", cat.Name)
	}

	ep = feed.Episode{Title: "Kubernetes and Golang", Description: "both keywords"}
	cat := InferCategory(ep, cats)
	if cat == nil || cat.Name != "tech" {
		t.Errorf("expected tech category, got %v", cat)
	}
}

func TestInferCategoryTableOrderBreaksTies(t *testing.T) {
	cats := config.Categories{
		Threshold: 1,
		Table: []config.Category{
			{Name: "first", Keywords: []string{"shared"}},
			{Name: "second", Keywords: []string{"shared"}},
		},
	}
	ep := feed.Episode{Title: "a shared keyword"}
	cat := InferCategory(ep, cats)
	if cat == nil || cat.Name != "first" {
		t.Errorf("expected 'first' to win the tie, got %v", cat)
	}
}

func TestInferCategoryMatchesDescription(t *testing.T) {
	ep := feed.Episode{Title: "Episode 12", Description: "all about sleep science"}
	cat := InferCategory(ep, testCategories())
	if cat == nil || cat.Name != "health" {
		t.Errorf("expected health, got %v", cat)
	}
}
