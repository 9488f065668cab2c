package abx

import (
	"context"
	"testing"

	"abxcore/internal/core"
	"abxcore/pkg/domain"

	"github.com/google/go-cmp/cmp"
)

func TestAntibioticClassesVocabulary(t *testing.T) {
	ctx := context.Background()
	svc := core.NewInMemoryService(nil)
	if _, err := svc.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	view(t, svc, func(v core.TransactionView) {
		terms := AntibioticClassesVocabulary(v)
		if terms == nil || len(terms) != 0 {
			t.Fatalf("expected empty vocabulary, got %#v", terms)
		}
	})

	svc = installed(t, nil)
	other, _ := svc.Search(ctx, core.Query{PortalType: domain.TypeAntibioticClass, Title: "Other"})
	if _, _, err := svc.SetActive(ctx, other[0].UID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, _, err := svc.CreateAntibioticClass(ctx, core.AntibioticClass{Base: core.Base{Title: "beta-lactamase inhibitors"}}); err != nil {
		t.Fatalf("create class: %v", err)
	}
	terms, err := svc.Vocabulary(ctx, VocabularyAntibioticClasses)
	if err != nil {
		t.Fatalf("vocabulary: %v", err)
	}
	var got []string
	for _, term := range terms {
		if term.Value != term.Token || !domain.IsUID(term.Value) {
			t.Fatalf("unexpected term %+v", term)
		}
		got = append(got, term.Title)
	}
	want := []string{
		"Aminoglycosides", "beta-lactamase inhibitors", "Carbapenems", "Cephalosporins",
		"Fluoroquinolones", "Macrolides", "Monobactams", "Penicillins", "Tetracyclines",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("vocabulary mismatch (-want +got):\n%s", diff)
	}
}

func TestListAntibiotics(t *testing.T) {
	ctx := context.Background()
	svc := installed(t, nil)
	classes, _ := svc.Search(ctx, core.Query{PortalType: domain.TypeAntibioticClass, Title: "Penicillins"})
	temp, _, err := svc.CreateAntibioticClass(ctx, core.AntibioticClass{Base: core.Base{Title: "Temporary"}})
	if err != nil {
		t.Fatalf("create class: %v", err)
	}
	mk := func(title, abbr, class string) core.Antibiotic {
		a, _, err := svc.CreateAntibiotic(ctx, core.Antibiotic{Base: core.Base{Title: title, Description: title + " desc"}, Abbreviation: abbr, AntibioticClassUID: class})
		if err != nil {
			t.Fatalf("create %s: %v", title, err)
		}
		return a
	}
	mk("penicillin", "P", classes[0].UID)
	oxa := mk("Oxacillin", "Ox", classes[0].UID)
	mk("Vancomycin", "Va", "")
	mk("Zidovudine", "Z", temp.UID)
	if _, err := svc.Delete(ctx, temp.UID); err != nil {
		t.Fatalf("delete class: %v", err)
	}
	if _, _, err := svc.SetActive(ctx, oxa.UID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	view(t, svc, func(v core.TransactionView) {
		rows, err := ListAntibiotics(v, ReviewStateActive)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		type cell struct{ Title, Abbreviation, Category string }
		var got []cell
		for _, r := range rows {
			got = append(got, cell{r.Title, r.Abbreviation, r.Category})
		}
		want := []cell{
			{"penicillin", "P", "Penicillins"},
			{"Vancomycin", "Va", OtherCategory},
			{"Zidovudine", "Z", OtherCategory},
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("active listing mismatch (-want +got):\n%s", diff)
		}
		if rows[0].Description != "penicillin desc" || rows[0].CategoryUID != classes[0].UID {
			t.Fatalf("unexpected row %+v", rows[0])
		}

		inactive, _ := ListAntibiotics(v, ReviewStateInactive)
		if len(inactive) != 1 || inactive[0].UID != oxa.UID || inactive[0].Active {
			t.Fatalf("unexpected inactive listing %+v", inactive)
		}
		all, _ := ListAntibiotics(v, ReviewStateAll)
		if len(all) != 4 || all[0].Title != "Oxacillin" {
			t.Fatalf("unexpected full listing %+v", all)
		}
		if _, err := ListAntibiotics(v, "archived"); err == nil {
			t.Fatalf("expected unknown review state error")
		}

		cats := Categories(v)
		if len(cats) != len(ClassNames) || cats[0] != "Aminoglycosides" || cats[len(cats)-1] != "Tetracyclines" {
			t.Fatalf("unexpected categories %v", cats)
		}
	})
}

func TestResolveAntibioticClass(t *testing.T) {
	svc := installed(t, nil)
	view(t, svc, func(v core.TransactionView) {
		if _, ok := ResolveAntibioticClass(v, core.Antibiotic{}); ok {
			t.Fatalf("empty reference must not resolve")
		}
		if _, ok := ResolveAntibioticClass(v, core.Antibiotic{AntibioticClassUID: "0123456789abcdef0123456789abcdef"}); ok {
			t.Fatalf("dangling reference must not resolve")
		}
		brains := v.Search(core.Query{PortalType: domain.TypeAntibioticClass, Title: "Other"})
		class, ok := ResolveAntibioticClass(v, core.Antibiotic{AntibioticClassUID: brains[0].UID})
		if !ok || class.Title != "Other" {
			t.Fatalf("expected Other class, got %+v %v", class, ok)
		}
	})
}
