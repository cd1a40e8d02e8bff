package preview

var page = `
<html>
	<script>
		window.setInterval(function(){
			let t = new Date().getTime()
			document.getElementById('curr').src = "/frame/curr?random=" + t;
			document.getElementById('prev').src = "/frame/prev?random=" + t;
			document.getElementById('baseline').src = "/frame/baseline?random=" + t;
			document.getElementById('mask').src = "/frame/mask?random=" + t;
		}, 1000);
	</script>
	<body>
		<div>
			<img id="stream" display="flex" src="/stream" style="max-width: 32%; height: auto; "/>
			<img id="curr" display="flex" src="/frame/curr" style="max-width: 32%; height: auto; "/>
			<img id="prev" display="flex" src="/frame/prev" style="max-width: 32%; height: auto; "/>
			<img id="baseline" display="flex" src="/frame/baseline" style="max-width: 32%; height: auto; "/>
			<img id="mask" display="flex" src="/frame/mask" style="max-width: 32%; height: auto; "/>
		</div>
		<pre><a href="/status">status</a></pre>
	</body>
</html>
`
