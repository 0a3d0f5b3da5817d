package corpus

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// 权利要求文本长度上限
const maxClaimLen = 500

// 默认授权期限（年）
const defaultGrantTerm = 15

// USPTO grant XML 映射结构，只声明需要的字段
type grantDoc struct {
	XMLName xml.Name   `xml:"us-patent-grant"`
	Biblio  *biblioDoc `xml:"us-bibliographic-data-grant"`
	Figures []figure   `xml:"drawings>figure"`
	Claims  []claim    `xml:"claims>claim"`
}

type biblioDoc struct {
	PubRef    docID     `xml:"publication-reference>document-id"`
	AppRef    docID     `xml:"application-reference>document-id"`
	Title     string    `xml:"invention-title"`
	Locarno   locarno   `xml:"classification-locarno"`
	GrantLen  string    `xml:"us-term-of-grant>length-of-grant"`
	Parties   parties   `xml:"us-parties"`
	OldStyle  parties   `xml:"parties"`
	Assignees []persons `xml:"assignees>assignee"`
}

type docID struct {
	DocNumber string `xml:"doc-number"`
	Kind      string `xml:"kind"`
	Date      string `xml:"date"`
}

type locarno struct {
	Edition   string `xml:"edition"`
	MainClass string `xml:"main-classification"`
}

type parties struct {
	Applicants []persons `xml:"us-applicants>us-applicant"`
	Inventors  []persons `xml:"inventors>inventor"`
}

type persons struct {
	AddressBook addressBook `xml:"addressbook"`
}

type addressBook struct {
	OrgName   string `xml:"orgname"`
	FirstName string `xml:"first-name"`
	LastName  string `xml:"last-name"`
	Country   string `xml:"address>country"`
}

type figure struct {
	Img struct {
		File string `xml:"file,attr"`
	} `xml:"img"`
}

type claim struct {
	Texts []claimText `xml:"claim-text"`
}

type claimText struct {
	InnerXML string `xml:",innerxml"`
}

// ParseGrantXML 解析一份外观专利 grant XML
//
// 解析失败（根元素不符、书目数据缺失、格式错误）返回 error，由调用方决定跳过。
func ParseGrantXML(xmlPath string) (*PatentRecord, error) {
	f, err := os.Open(xmlPath)
	if err != nil {
		return nil, fmt.Errorf("open xml: %w", err)
	}
	defer f.Close()

	dec := xml.NewDecoder(f)
	dec.Strict = false
	dec.Entity = xml.HTMLEntity

	var doc grantDoc
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode xml: %w", err)
	}
	if doc.Biblio == nil {
		return nil, fmt.Errorf("missing us-bibliographic-data-grant: %s", xmlPath)
	}

	biblio := doc.Biblio
	rec := &PatentRecord{
		PatentID:   strings.TrimSpace(biblio.PubRef.DocNumber),
		Kind:       strings.TrimSpace(biblio.PubRef.Kind),
		Title:      strings.TrimSpace(biblio.Title),
		LocClass:   strings.TrimSpace(biblio.Locarno.MainClass),
		LocEdition: strings.TrimSpace(biblio.Locarno.Edition),
		PubDate:    parseDate(biblio.PubRef.Date),
		FilingDate: parseDate(biblio.AppRef.Date),
		GrantTerm:  parseGrantTerm(biblio.GrantLen),
		XMLPath:    xmlPath,
		DataDir:    filepath.Dir(xmlPath),
	}
	if rec.Kind == "" {
		rec.Kind = "S1"
	}

	applicants := biblio.Parties.Applicants
	if len(applicants) == 0 {
		applicants = biblio.OldStyle.Applicants
	}
	rec.ApplicantName, rec.ApplicantCountry = applicantInfo(applicants)

	inventors := biblio.Parties.Inventors
	if len(inventors) == 0 {
		inventors = biblio.OldStyle.Inventors
	}
	rec.InventorNames = inventorNames(inventors)

	if len(biblio.Assignees) > 0 {
		rec.AssigneeName = strings.TrimSpace(biblio.Assignees[0].AddressBook.OrgName)
	}

	if len(doc.Claims) > 0 && len(doc.Claims[0].Texts) > 0 {
		text := flattenXMLText(doc.Claims[0].Texts[0].InnerXML)
		if len(text) > maxClaimLen {
			text = text[:maxClaimLen]
		}
		rec.ClaimText = text
	}

	for _, fig := range doc.Figures {
		if name := strings.TrimSpace(fig.Img.File); name != "" {
			rec.Images = append(rec.Images, name)
		}
	}
	rec.ImageCount = len(rec.Images)

	return rec, nil
}

func parseDate(s string) int64 {
	s = strings.TrimSpace(s)
	if len(s) != 8 {
		return 0
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseGrantTerm(s string) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || v <= 0 {
		return defaultGrantTerm
	}
	return v
}

// applicantInfo 优先取公司名，其次取个人名
func applicantInfo(applicants []persons) (string, string) {
	if len(applicants) == 0 {
		return "", ""
	}
	ab := applicants[0].AddressBook
	country := strings.TrimSpace(ab.Country)
	if org := strings.TrimSpace(ab.OrgName); org != "" {
		return org, country
	}
	name := strings.TrimSpace(strings.TrimSpace(ab.FirstName) + " " + strings.TrimSpace(ab.LastName))
	return name, country
}

func inventorNames(inventors []persons) string {
	names := make([]string, 0, len(inventors))
	for _, inv := range inventors {
		ab := inv.AddressBook
		name := strings.TrimSpace(strings.TrimSpace(ab.FirstName) + " " + strings.TrimSpace(ab.LastName))
		if name != "" {
			names = append(names, name)
		}
	}
	return strings.Join(names, ", ")
}

// flattenXMLText 提取 XML 片段中的全部文本内容（含嵌套元素）
func flattenXMLText(fragment string) string {
	dec := xml.NewDecoder(strings.NewReader(fragment))
	dec.Strict = false
	dec.Entity = xml.HTMLEntity

	var sb strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		if cd, ok := tok.(xml.CharData); ok {
			sb.Write(cd)
		}
	}
	return strings.TrimSpace(sb.String())
}
