package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemapSQLQualifiedNames(t *testing.T) {
	cat := testCatalog(t)

	logical := "SELECT Name FROM `acme-data.crm.Account` WHERE Amount > 0"
	physical := cat.RemapSQL(logical, LogicalToPhysical)
	assert.Equal(t, "SELECT Name FROM `acme-data.crm.Account__c` WHERE Amount > 0", physical)

	back := cat.RemapSQL(physical, PhysicalToLogical)
	assert.Equal(t, logical, back)
}

func TestRemapSQLBareIdentifiers(t *testing.T) {
	cat := testCatalog(t)

	logical := "SELECT a.Name FROM Account a JOIN Opportunity o ON o.AccountId = a.Id"
	physical := cat.RemapSQL(logical, LogicalToPhysical)
	assert.Equal(t,
		"SELECT a.Name FROM Account__c a JOIN Opportunity__c o ON o.AccountId = a.Id",
		physical)
}

func TestRemapSQLNeverRewritesSubstrings(t *testing.T) {
	cat := testCatalog(t)

	// AccountManager shares a prefix with the Account entity but is a
	// different token; it must pass through untouched.
	sql := "SELECT AccountManager, Accounts FROM `acme-data.crm.Account`"
	got := cat.RemapSQL(sql, LogicalToPhysical)
	assert.Equal(t, "SELECT AccountManager, Accounts FROM `acme-data.crm.Account__c`", got)
}

func TestRemapSQLLeavesLiteralsAndCommentsAlone(t *testing.T) {
	cat := testCatalog(t)

	sql := "SELECT 'Account', \"Opportunity\" FROM Account -- Account note\n" +
		"/* Opportunity block */ WHERE Name = 'It''s an Account'"
	got := cat.RemapSQL(sql, LogicalToPhysical)
	assert.Equal(t,
		"SELECT 'Account', \"Opportunity\" FROM Account__c -- Account note\n"+
			"/* Opportunity block */ WHERE Name = 'It''s an Account'",
		got)
}

func TestRemapSQLRoundTripIsIdentity(t *testing.T) {
	cat := testCatalog(t)

	queries := []string{
		"SELECT * FROM Account",
		"SELECT o.Amount FROM `acme-data.crm.Opportunity` o",
		"WITH t AS (SELECT Id FROM Account) SELECT * FROM t JOIN Opportunity USING (Id)",
		"SELECT 'no identifiers here'",
	}
	for _, q := range queries {
		physical := cat.RemapSQL(q, LogicalToPhysical)
		require.Equal(t, q, cat.RemapSQL(physical, PhysicalToLogical), "query: %s", q)
	}
}

func TestRemapSQLBackslashEscapedQuote(t *testing.T) {
	cat := testCatalog(t)

	// A backslash-escaped quote does not end the literal; the entity name
	// after it is still literal content.
	sql := `SELECT Name FROM Account WHERE Note = 'It\'s an Account'`
	got := cat.RemapSQL(sql, LogicalToPhysical)
	assert.Equal(t, `SELECT Name FROM Account__c WHERE Note = 'It\'s an Account'`, got)

	sql = `SELECT '\\' , Name FROM Account`
	assert.Equal(t, `SELECT '\\' , Name FROM Account__c`, cat.RemapSQL(sql, LogicalToPhysical))
}

func TestRemapSQLShortBlockCommentOpener(t *testing.T) {
	cat := testCatalog(t)

	// "/*/" does not close the comment it opens; everything after it is
	// still comment content.
	sql := "SELECT 1 /*/ Account */ FROM Opportunity"
	got := cat.RemapSQL(sql, LogicalToPhysical)
	assert.Equal(t, "SELECT 1 /*/ Account */ FROM Opportunity__c", got)

	// An unterminated comment is copied through verbatim.
	sql = "SELECT 1 /*/ Account"
	assert.Equal(t, sql, cat.RemapSQL(sql, LogicalToPhysical))
}

func TestRemapSQLUnterminatedBacktick(t *testing.T) {
	cat := testCatalog(t)

	sql := "SELECT * FROM `acme-data.crm.Account"
	assert.Equal(t, sql, cat.RemapSQL(sql, LogicalToPhysical))
}
