package terraform

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/pkg/errors"
	"github.com/zclconf/go-cty/cty"
)

const (
	FileMain   = "main.tf"
	FileOutput = "output.tf"
)

// AWS returns terraform files provisioning a versioned S3 bucket and
// a user allowed to read and write its object versions.
func AWS(bucket string) (map[string][]byte, error) {
	if bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	return map[string][]byte{
		FileMain:   awsMain(bucket).Bytes(),
		FileOutput: awsOutput().Bytes(),
	}, nil
}

func awsMain(bucket string) *hclwrite.File {
	f := hclwrite.NewEmptyFile()
	root := f.Body()

	tf := root.AppendNewBlock("terraform", nil).Body()
	providers := tf.AppendNewBlock("required_providers", nil).Body()
	providers.SetAttributeValue("aws", cty.ObjectVal(map[string]cty.Value{
		"source":  cty.StringVal("hashicorp/aws"),
		"version": cty.StringVal("~> 5.0"),
	}))
	root.AppendNewline()

	b := root.AppendNewBlock("resource", []string{"aws_s3_bucket", "backup"}).Body()
	b.SetAttributeValue("bucket", cty.StringVal(bucket))
	root.AppendNewline()

	v := root.AppendNewBlock("resource", []string{"aws_s3_bucket_versioning", "backup"}).Body()
	v.SetAttributeTraversal("bucket", ref("aws_s3_bucket", "backup", "id"))
	v.AppendNewBlock("versioning_configuration", nil).Body().
		SetAttributeValue("status", cty.StringVal("Enabled"))
	root.AppendNewline()

	pab := root.AppendNewBlock("resource", []string{"aws_s3_bucket_public_access_block", "backup"}).Body()
	pab.SetAttributeTraversal("bucket", ref("aws_s3_bucket", "backup", "id"))
	for _, name := range []string{"block_public_acls", "block_public_policy", "ignore_public_acls", "restrict_public_buckets"} {
		pab.SetAttributeValue(name, cty.True)
	}
	root.AppendNewline()

	u := root.AppendNewBlock("resource", []string{"aws_iam_user", "backup"}).Body()
	u.SetAttributeValue("name", cty.StringVal(bucket+"-caretaker"))
	root.AppendNewline()

	k := root.AppendNewBlock("resource", []string{"aws_iam_access_key", "backup"}).Body()
	k.SetAttributeTraversal("user", ref("aws_iam_user", "backup", "name"))
	root.AppendNewline()

	doc := root.AppendNewBlock("data", []string{"aws_iam_policy_document", "backup"}).Body()
	bucketStmt := doc.AppendNewBlock("statement", nil).Body()
	bucketStmt.SetAttributeValue("actions", stringList("s3:ListBucket", "s3:ListBucketVersions"))
	bucketStmt.SetAttributeRaw("resources", tokens("[aws_s3_bucket.backup.arn]"))
	objectStmt := doc.AppendNewBlock("statement", nil).Body()
	objectStmt.SetAttributeValue("actions", stringList("s3:GetObject", "s3:GetObjectVersion", "s3:PutObject"))
	objectStmt.SetAttributeRaw("resources", tokens(`["${aws_s3_bucket.backup.arn}/*"]`))
	root.AppendNewline()

	p := root.AppendNewBlock("resource", []string{"aws_iam_user_policy", "backup"}).Body()
	p.SetAttributeValue("name", cty.StringVal("caretaker-backup"))
	p.SetAttributeTraversal("user", ref("aws_iam_user", "backup", "name"))
	p.SetAttributeTraversal("policy", ref("data", "aws_iam_policy_document", "backup", "json"))

	return f
}

func awsOutput() *hclwrite.File {
	f := hclwrite.NewEmptyFile()
	root := f.Body()

	outputs := []struct {
		name      string
		value     hcl.Traversal
		sensitive bool
	}{
		{name: "bucket", value: ref("aws_s3_bucket", "backup", "id")},
		{name: "access_key_id", value: ref("aws_iam_access_key", "backup", "id")},
		{name: "secret_access_key", value: ref("aws_iam_access_key", "backup", "secret"), sensitive: true},
	}
	for i, o := range outputs {
		if i > 0 {
			root.AppendNewline()
		}
		b := root.AppendNewBlock("output", []string{o.name}).Body()
		b.SetAttributeTraversal("value", o.value)
		if o.sensitive {
			b.SetAttributeValue("sensitive", cty.True)
		}
	}
	return f
}

func ref(root string, attrs ...string) hcl.Traversal {
	t := hcl.Traversal{hcl.TraverseRoot{Name: root}}
	for _, a := range attrs {
		t = append(t, hcl.TraverseAttr{Name: a})
	}
	return t
}

func stringList(values ...string) cty.Value {
	vals := make([]cty.Value, len(values))
	for i, v := range values {
		vals[i] = cty.StringVal(v)
	}
	return cty.ListVal(vals)
}

func tokens(src string) hclwrite.Tokens {
	expr, diags := hclwrite.ParseConfig([]byte("x = "+src), "", hcl.InitialPos)
	if diags.HasErrors() {
		panic(diags.Error())
	}
	return expr.Body().GetAttribute("x").Expr().BuildTokens(nil)
}
